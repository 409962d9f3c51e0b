package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

func TestStaticRosterJoin(t *testing.T) {
	t.Parallel()

	identity := Identity{Site: "sandbox", PartitionID: 1, NumPartitions: 4}
	roster := NewStaticRoster(identity)

	got, err := roster.Join(context.Background())
	require.NoError(t, err)
	require.Equal(t, identity, got)
	require.NoError(t, roster.Leave(context.Background()))
}

func TestStaticRosterRejectsInvalidIdentity(t *testing.T) {
	t.Parallel()

	roster := NewStaticRoster(Identity{Site: "sandbox", PartitionID: 5, NumPartitions: 4})
	_, err := roster.Join(context.Background())
	require.Error(t, err)
}

type fakeRosterClient struct {
	grantID  clientv3.LeaseID
	grantErr error
	putErr   error
	kaErr    error
	getErr   error
	members  []string

	puts    int
	revoked []clientv3.LeaseID
}

func (c *fakeRosterClient) Grant(context.Context, int64) (*clientv3.LeaseGrantResponse, error) {
	if c.grantErr != nil {
		return nil, c.grantErr
	}
	return &clientv3.LeaseGrantResponse{ID: c.grantID}, nil
}

func (c *fakeRosterClient) Put(_ context.Context, _, _ string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	if c.putErr != nil {
		return nil, c.putErr
	}
	c.puts++
	return &clientv3.PutResponse{}, nil
}

func (c *fakeRosterClient) Get(context.Context, string, ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	resp := &clientv3.GetResponse{}
	for _, member := range c.members {
		resp.Kvs = append(resp.Kvs, &mvccpb.KeyValue{Key: []byte(member)})
	}
	return resp, nil
}

func (c *fakeRosterClient) KeepAlive(context.Context, clientv3.LeaseID) (<-chan *clientv3.LeaseKeepAliveResponse, error) {
	if c.kaErr != nil {
		return nil, c.kaErr
	}
	ch := make(chan *clientv3.LeaseKeepAliveResponse)
	close(ch)
	return ch, nil
}

func (c *fakeRosterClient) Revoke(_ context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error) {
	c.revoked = append(c.revoked, id)
	return &clientv3.LeaseRevokeResponse{}, nil
}

func newTestLeaseRoster(client rosterClient) *LeaseRoster {
	return &LeaseRoster{
		client:    client,
		namespace: "/jobhistory",
		role:      "crawler",
		workerID:  "worker-b",
		site:      "sandbox",
		ttlSecs:   DefaultMemberTTLSecs,
		logger:    zap.NewNop(),
	}
}

func TestLeaseRosterJoinComputesIdentity(t *testing.T) {
	t.Parallel()

	client := &fakeRosterClient{
		grantID: 77,
		members: []string{
			"/jobhistory/members/crawler/worker-c",
			"/jobhistory/members/crawler/worker-a",
			"/jobhistory/members/crawler/worker-b",
		},
	}
	roster := newTestLeaseRoster(client)

	identity, err := roster.Join(context.Background())
	require.NoError(t, err)
	require.Equal(t, Identity{Site: "sandbox", PartitionID: 1, NumPartitions: 3}, identity)
	require.Equal(t, 1, client.puts)
	require.Empty(t, client.revoked)

	require.NoError(t, roster.Leave(context.Background()))
	require.Equal(t, []clientv3.LeaseID{77}, client.revoked)
}

func TestLeaseRosterJoinRevokesOnRegisterFailure(t *testing.T) {
	t.Parallel()

	client := &fakeRosterClient{grantID: 42, putErr: errors.New("etcdserver: request timed out")}
	roster := newTestLeaseRoster(client)

	_, err := roster.Join(context.Background())
	require.Error(t, err)
	require.Equal(t, []clientv3.LeaseID{42}, client.revoked,
		"a failed registration must not leave its lease alive until TTL expiry")

	// Nothing left to revoke on Leave.
	require.NoError(t, roster.Leave(context.Background()))
	require.Len(t, client.revoked, 1)
}

func TestLeaseRosterJoinRevokesOnKeepAliveFailure(t *testing.T) {
	t.Parallel()

	client := &fakeRosterClient{grantID: 42, kaErr: errors.New("lease keepalive unavailable")}
	roster := newTestLeaseRoster(client)

	_, err := roster.Join(context.Background())
	require.Error(t, err)
	require.Equal(t, []clientv3.LeaseID{42}, client.revoked)
}

func TestLeaseRosterJoinRevokesOnListFailure(t *testing.T) {
	t.Parallel()

	client := &fakeRosterClient{grantID: 42, getErr: errors.New("etcdserver: leader changed")}
	roster := newTestLeaseRoster(client)

	_, err := roster.Join(context.Background())
	require.Error(t, err)
	require.Equal(t, []clientv3.LeaseID{42}, client.revoked)
}

func TestComputeIndex(t *testing.T) {
	t.Parallel()

	members := []string{
		"/jobhistory/members/crawler/worker-c",
		"/jobhistory/members/crawler/worker-a",
		"/jobhistory/members/crawler/worker-b",
	}

	index, count, err := computeIndex(members, "/jobhistory/members/crawler/worker-a")
	require.NoError(t, err)
	require.Equal(t, 0, index)
	require.Equal(t, 3, count)

	index, count, err = computeIndex(members, "/jobhistory/members/crawler/worker-c")
	require.NoError(t, err)
	require.Equal(t, 2, index)
	require.Equal(t, 3, count)
}

func TestComputeIndexSingleMember(t *testing.T) {
	t.Parallel()

	index, count, err := computeIndex([]string{"/ns/members/crawler/solo"}, "/ns/members/crawler/solo")
	require.NoError(t, err)
	require.Equal(t, 0, index)
	require.Equal(t, 1, count)
}

func TestComputeIndexMissingSelf(t *testing.T) {
	t.Parallel()

	_, _, err := computeIndex([]string{"/ns/members/crawler/other"}, "/ns/members/crawler/self")
	require.Error(t, err)
}

func TestComputeIndexDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	members := []string{"/ns/m/c", "/ns/m/a", "/ns/m/b"}
	_, _, err := computeIndex(members, "/ns/m/b")
	require.NoError(t, err)
	require.Equal(t, []string{"/ns/m/c", "/ns/m/a", "/ns/m/b"}, members)
}
