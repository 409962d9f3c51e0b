package harness

import (
	"context"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// DefaultMemberTTLSecs is the lease TTL backing a roster registration.
const DefaultMemberTTLSecs = 60

// Roster assigns the worker its identity at startup. Assignment is
// taken once at join time; rebalancing after membership changes is an
// operational restart, not a live handoff.
type Roster interface {
	Join(ctx context.Context) (Identity, error)
	Leave(ctx context.Context) error
}

// StaticRoster returns a fixed identity from configuration.
type StaticRoster struct {
	identity Identity
}

// NewStaticRoster wraps a configured identity.
func NewStaticRoster(identity Identity) *StaticRoster {
	return &StaticRoster{identity: identity}
}

// Join returns the configured identity.
func (r *StaticRoster) Join(context.Context) (Identity, error) {
	if err := r.identity.Validate(); err != nil {
		return Identity{}, err
	}
	return r.identity, nil
}

// Leave is a no-op for static assignment.
func (r *StaticRoster) Leave(context.Context) error { return nil }

// rosterClient is the slice of the etcd client the roster uses.
type rosterClient interface {
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	KeepAlive(ctx context.Context, id clientv3.LeaseID) (<-chan *clientv3.LeaseKeepAliveResponse, error)
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
}

// LeaseRoster registers the worker under
// <namespace>/members/<role>/<workerID> with a kept-alive lease and
// derives (partition, count) from the sorted member list. A crashed
// worker's registration disappears when its lease expires.
type LeaseRoster struct {
	client    rosterClient
	namespace string
	role      string
	workerID  string
	site      string
	ttlSecs   int
	logger    *zap.Logger

	leaseID clientv3.LeaseID
	cancel  context.CancelFunc
}

// NewLeaseRoster constructs a lease-backed roster. An empty workerID
// gets a generated one; an empty role defaults to "crawler".
func NewLeaseRoster(client *clientv3.Client, namespace, role, workerID, site string, ttlSecs int, logger *zap.Logger) *LeaseRoster {
	if role == "" {
		role = "crawler"
	}
	if workerID == "" {
		workerID = uuid.NewString()
	}
	if ttlSecs <= 0 {
		ttlSecs = DefaultMemberTTLSecs
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaseRoster{
		client:    client,
		namespace: namespace,
		role:      role,
		workerID:  workerID,
		site:      site,
		ttlSecs:   ttlSecs,
		logger:    logger,
	}
}

func (r *LeaseRoster) memberPrefix() string {
	return path.Join(r.namespace, "members", r.role) + "/"
}

func (r *LeaseRoster) memberKey() string {
	return r.memberPrefix() + r.workerID
}

// Join registers this worker and computes its slot from the sorted
// sibling list. A failed join revokes the granted lease so the member
// key does not linger until TTL expiry, inflating sibling counts for
// workers joining in that window.
func (r *LeaseRoster) Join(ctx context.Context) (Identity, error) {
	lease, err := r.client.Grant(ctx, int64(r.ttlSecs))
	if err != nil {
		return Identity{}, fmt.Errorf("grant membership lease: %w", err)
	}
	r.leaseID = lease.ID

	if _, err := r.client.Put(ctx, r.memberKey(), r.site, clientv3.WithLease(lease.ID)); err != nil {
		r.abandon()
		return Identity{}, fmt.Errorf("register member %s: %w", r.workerID, err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	keepAlive, err := r.client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		r.abandon()
		return Identity{}, fmt.Errorf("keep membership lease alive: %w", err)
	}
	go func() {
		for range keepAlive {
		}
		r.logger.Warn("membership keepalive channel closed",
			zap.String("worker_id", r.workerID))
	}()

	resp, err := r.client.Get(ctx, r.memberPrefix(), clientv3.WithPrefix())
	if err != nil {
		cancel()
		r.abandon()
		return Identity{}, fmt.Errorf("list members: %w", err)
	}
	members := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		members = append(members, string(kv.Key))
	}

	index, count, err := computeIndex(members, r.memberKey())
	if err != nil {
		cancel()
		r.abandon()
		return Identity{}, err
	}
	identity := Identity{Site: r.site, PartitionID: index, NumPartitions: count}
	if err := identity.Validate(); err != nil {
		cancel()
		r.abandon()
		return Identity{}, err
	}
	r.logger.Info("joined worker roster",
		zap.String("worker_id", r.workerID),
		zap.String("site", r.site),
		zap.Int("partition", index),
		zap.Int("partitions", count))
	return identity, nil
}

// abandon revokes a half-joined registration. The join context may
// already be dead (it is often why the join failed), so the revoke
// runs on its own short deadline.
func (r *LeaseRoster) abandon() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.client.Revoke(ctx, r.leaseID); err != nil {
		r.logger.Warn("revoke abandoned membership lease",
			zap.String("worker_id", r.workerID),
			zap.Error(err))
	}
	r.leaseID = 0
	r.cancel = nil
}

// Leave stops the keepalive and revokes the lease so the slot frees
// immediately instead of waiting out the TTL.
func (r *LeaseRoster) Leave(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.leaseID == 0 {
		return nil
	}
	if _, err := r.client.Revoke(ctx, r.leaseID); err != nil {
		return fmt.Errorf("revoke membership lease: %w", err)
	}
	return nil
}

// computeIndex returns the zero-based position of self in the sorted
// member list and the member count.
func computeIndex(members []string, self string) (int, int, error) {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	for i, member := range sorted {
		if member == self {
			return i, len(sorted), nil
		}
	}
	return 0, 0, fmt.Errorf("own key %s missing from member list", self)
}
