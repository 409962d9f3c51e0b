package reconcile

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clustermon/jobhistory-crawler/internal/backend"
	"github.com/clustermon/jobhistory-crawler/internal/history"
	"github.com/clustermon/jobhistory-crawler/internal/lifecycle"
	"github.com/clustermon/jobhistory-crawler/internal/metrics"
	"github.com/clustermon/jobhistory-crawler/internal/state"
	"github.com/clustermon/jobhistory-crawler/internal/state/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fakeClient struct {
	mu       sync.Mutex
	created  [][]history.WatermarkEntity
	calls    int
	failures int
	closed   int
}

func (c *fakeClient) Create(_ context.Context, entities []history.WatermarkEntity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failures > 0 {
		c.failures--
		return errors.New("backend unavailable")
	}
	c.created = append(c.created, entities)
	return nil
}

func (c *fakeClient) SubmitOperation(context.Context, lifecycle.Operation) error { return nil }

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

type fakeFactory struct {
	client  *fakeClient
	dialErr error
	dials   int
}

func (f *fakeFactory) Dial(context.Context) (backend.Client, error) {
	f.dials++
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	return f.client, nil
}

func newTestState(t *testing.T, watermarks []int64) *state.Manager {
	t.Helper()
	mgr := state.NewManager(memory.NewStore(), memory.NewLocker(time.Second), "/jobhistory/test", nil, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, mgr.EnsurePartitions(ctx, len(watermarks)))
	for i, w := range watermarks {
		if w != 0 {
			require.NoError(t, mgr.WriteWatermark(ctx, i, w))
		}
	}
	return mgr
}

func newReconciler(mgr *state.Manager, factory backend.Factory, partitionID, numPartitions int) *Reconciler {
	return New(mgr, factory, Config{
		Site:          "sandbox",
		PartitionID:   partitionID,
		NumPartitions: numPartitions,
		MaxRetries:    3,
		RetryDelay:    time.Millisecond,
	}, zap.NewNop())
}

func TestReconcilePublishesMinimumWatermark(t *testing.T) {
	t.Parallel()

	mgr := newTestState(t, []int64{5000, 3000, 7000})
	factory := &fakeFactory{client: &fakeClient{}}
	r := newReconciler(mgr, factory, 0, 3)

	require.NoError(t, r.Reconcile(context.Background()))

	require.Equal(t, 1, factory.dials)
	require.Len(t, factory.client.created, 1)
	require.Len(t, factory.client.created[0], 1)
	entity := factory.client.created[0][0]
	require.Equal(t, "sandbox", entity.Site)
	require.EqualValues(t, 3000, entity.CurrentTimeStamp)
	require.EqualValues(t, 3000, entity.Timestamp)
	require.Equal(t, 1, factory.client.closed, "client must be closed after the cycle")
}

func TestReconcileSkipsWhenAnyPartitionUncommitted(t *testing.T) {
	t.Parallel()

	mgr := newTestState(t, []int64{5000, 0, 7000})
	factory := &fakeFactory{client: &fakeClient{}}
	r := newReconciler(mgr, factory, 0, 3)

	require.NoError(t, r.Reconcile(context.Background()))
	require.Zero(t, factory.dials, "an uncommitted partition must skip the publish entirely")
}

func TestReconcileOnlyPartitionZeroPublishes(t *testing.T) {
	t.Parallel()

	mgr := newTestState(t, []int64{5000, 3000, 7000})
	factory := &fakeFactory{client: &fakeClient{}}
	r := newReconciler(mgr, factory, 2, 3)

	require.NoError(t, r.Reconcile(context.Background()))
	require.Zero(t, factory.dials)
}

func TestReconcileRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	mgr := newTestState(t, []int64{4000, 4000})
	client := &fakeClient{failures: 2}
	factory := &fakeFactory{client: client}
	r := newReconciler(mgr, factory, 0, 2)

	require.NoError(t, r.Reconcile(context.Background()))
	require.Equal(t, 3, client.calls)
	require.Len(t, client.created, 1)
}

func TestReconcileDropsAfterExhaustedRetries(t *testing.T) {
	t.Parallel()

	mgr := newTestState(t, []int64{4000, 4000})
	client := &fakeClient{failures: 100}
	factory := &fakeFactory{client: client}
	r := newReconciler(mgr, factory, 0, 2)

	// Exhaustion drops the value without failing the cycle.
	require.NoError(t, r.Reconcile(context.Background()))
	require.Equal(t, 4, client.calls, "one initial attempt plus three retries")
	require.Empty(t, client.created)
	require.Equal(t, 1, client.closed)
}

func TestReconcileRejectsZeroPartitions(t *testing.T) {
	t.Parallel()

	mgr := newTestState(t, []int64{4000})
	factory := &fakeFactory{client: &fakeClient{}}
	r := newReconciler(mgr, factory, 0, 0)

	err := r.Reconcile(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "at least one partition")
	require.Zero(t, factory.dials)
}

func TestReconcileDialFailureSurfaces(t *testing.T) {
	t.Parallel()

	mgr := newTestState(t, []int64{4000, 4000})
	factory := &fakeFactory{dialErr: errors.New("connection refused")}
	r := newReconciler(mgr, factory, 0, 2)

	err := r.Reconcile(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "dial backend")
}
