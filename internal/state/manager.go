package state

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/clustermon/jobhistory-crawler/internal/history"
)

// Manager persists crawl progress under a namespace in the coordination
// store. The tree it maintains:
//
//	<ns>/partitions/<i>        watermark, epoch millis as decimal text
//	<ns>/jobs/<bucket>/<jobID> processed marker, bucket = UTC day
//
// Partition keys are created once, guarded by a lock so exactly one
// worker wins expansion. Watermarks and markers are plain writes; the
// store itself is the source of truth and the Manager adds no retries.
type Manager struct {
	store     Store
	locker    Locker
	clock     history.Clock
	logger    *zap.Logger
	namespace string
}

// NewManager returns a Manager rooted at namespace. A nil clock falls
// back to the system clock, a nil logger to a no-op logger.
func NewManager(store Store, locker Locker, namespace string, clock history.Clock, logger *zap.Logger) *Manager {
	if clock == nil {
		clock = history.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     store,
		locker:    locker,
		clock:     clock,
		logger:    logger,
		namespace: namespace,
	}
}

func (m *Manager) partitionKey(partitionID int) string {
	return path.Join(m.namespace, "partitions", strconv.Itoa(partitionID))
}

func (m *Manager) partitionsPrefix() string {
	return path.Join(m.namespace, "partitions") + "/"
}

func (m *Manager) jobKey(bucket, jobID string) string {
	return path.Join(m.namespace, "jobs", bucket, jobID)
}

func (m *Manager) jobsPrefix() string {
	return path.Join(m.namespace, "jobs") + "/"
}

func (m *Manager) bucketPrefix(bucket string) string {
	return path.Join(m.namespace, "jobs", bucket) + "/"
}

func (m *Manager) expansionLock() string {
	return path.Join(m.namespace, "locks", "partitions")
}

// EnsurePartitions makes sure partition keys 0..numPartitions-1 exist,
// initializing missing ones with a zero watermark. Concurrent callers
// are safe: the expansion runs under a lock and each key is created
// with a create-if-absent write, so exactly one worker initializes each
// partition and existing watermarks are never overwritten. The tree is
// grow-only; keys beyond numPartitions are left untouched.
func (m *Manager) EnsurePartitions(ctx context.Context, numPartitions int) error {
	if numPartitions <= 0 {
		return fmt.Errorf("num partitions must be positive, got %d", numPartitions)
	}

	existing, err := m.store.List(ctx, m.partitionsPrefix())
	if err != nil {
		return fmt.Errorf("list partitions: %w", err)
	}
	if m.countAssigned(existing, numPartitions) == numPartitions {
		m.warnOrphans(existing, numPartitions)
		return nil
	}

	unlock, err := m.locker.Acquire(ctx, m.expansionLock())
	if err != nil {
		return fmt.Errorf("acquire partition expansion lock: %w", err)
	}
	defer func() {
		if unlockErr := unlock(context.Background()); unlockErr != nil {
			m.logger.Warn("release partition expansion lock", zap.Error(unlockErr))
		}
	}()

	created := 0
	for i := 0; i < numPartitions; i++ {
		ok, err := m.store.PutIfAbsent(ctx, m.partitionKey(i), []byte("0"))
		if err != nil {
			return fmt.Errorf("initialize partition %d: %w", i, err)
		}
		if ok {
			created++
		}
	}
	if created > 0 {
		m.logger.Info("initialized partitions",
			zap.Int("created", created),
			zap.Int("total", numPartitions))
	}
	m.warnOrphans(existing, numPartitions)
	return nil
}

func (m *Manager) countAssigned(existing map[string][]byte, numPartitions int) int {
	assigned := 0
	for i := 0; i < numPartitions; i++ {
		if _, ok := existing[m.partitionKey(i)]; ok {
			assigned++
		}
	}
	return assigned
}

// warnOrphans flags partition keys beyond the configured count. They
// keep their watermarks but no worker reads them until the count grows
// back.
func (m *Manager) warnOrphans(existing map[string][]byte, numPartitions int) {
	for key := range existing {
		id, err := strconv.Atoi(path.Base(key))
		if err != nil {
			continue
		}
		if id >= numPartitions {
			m.logger.Warn("orphaned partition beyond configured count",
				zap.Int("partition", id),
				zap.Int("num_partitions", numPartitions))
		}
	}
}

// ReadWatermark returns the committed watermark for a partition, or 0
// when none has been written yet.
func (m *Manager) ReadWatermark(ctx context.Context, partitionID int) (int64, error) {
	value, ok, err := m.store.Get(ctx, m.partitionKey(partitionID))
	if err != nil {
		return 0, fmt.Errorf("read watermark for partition %d: %w", partitionID, err)
	}
	if !ok || len(value) == 0 {
		return 0, nil
	}
	watermark, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed watermark for partition %d: %w", partitionID, err)
	}
	return watermark, nil
}

// WriteWatermark commits a watermark for a partition.
func (m *Manager) WriteWatermark(ctx context.Context, partitionID int, watermark int64) error {
	err := m.store.Put(ctx, m.partitionKey(partitionID), []byte(strconv.FormatInt(watermark, 10)))
	if err != nil {
		return fmt.Errorf("write watermark for partition %d: %w", partitionID, err)
	}
	return nil
}

// Watermarks reads the watermarks of partitions 0..numPartitions-1.
func (m *Manager) Watermarks(ctx context.Context, numPartitions int) ([]int64, error) {
	watermarks := make([]int64, numPartitions)
	for i := 0; i < numPartitions; i++ {
		w, err := m.ReadWatermark(ctx, i)
		if err != nil {
			return nil, err
		}
		watermarks[i] = w
	}
	return watermarks, nil
}

// MarkJobProcessed records that jobID's artifact (modified at modTime)
// has been fully processed. Marking the same job twice is harmless.
func (m *Manager) MarkJobProcessed(ctx context.Context, jobID string, modTime int64) error {
	key := m.jobKey(history.Bucket(modTime), jobID)
	if err := m.store.Put(ctx, key, []byte(strconv.FormatInt(modTime, 10))); err != nil {
		return fmt.Errorf("mark job %s processed: %w", jobID, err)
	}
	return nil
}

// IsJobProcessed reports whether jobID's artifact was already processed.
func (m *Manager) IsJobProcessed(ctx context.Context, jobID string, modTime int64) (bool, error) {
	_, ok, err := m.store.Get(ctx, m.jobKey(history.Bucket(modTime), jobID))
	if err != nil {
		return false, fmt.Errorf("check job %s processed: %w", jobID, err)
	}
	return ok, nil
}

// PruneOlderThan removes processed-marker buckets strictly older than
// retentionDays and returns how many buckets were dropped. Markers
// inside the retention window are kept so re-listed artifacts stay
// deduplicated.
func (m *Manager) PruneOlderThan(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	threshold := history.BucketOf(m.clock.Now().AddDate(0, 0, -retentionDays))

	entries, err := m.store.List(ctx, m.jobsPrefix())
	if err != nil {
		return 0, fmt.Errorf("list processed markers: %w", err)
	}

	buckets := make(map[string]struct{})
	for key := range entries {
		rest := strings.TrimPrefix(key, m.jobsPrefix())
		bucket, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		// Fixed-width UTC day buckets compare correctly as strings.
		if bucket < threshold {
			buckets[bucket] = struct{}{}
		}
	}

	pruned := 0
	for bucket := range buckets {
		deleted, err := m.store.DeletePrefix(ctx, m.bucketPrefix(bucket))
		if err != nil {
			return pruned, fmt.Errorf("prune bucket %s: %w", bucket, err)
		}
		pruned++
		m.logger.Info("pruned processed-marker bucket",
			zap.String("bucket", bucket),
			zap.Int("markers", deleted))
	}
	return pruned, nil
}
