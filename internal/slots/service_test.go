package slots

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rossigee/slot-rank-tracker/internal/storage"
	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

type countingNotifier struct {
	calls int
	err   error
}

func (n *countingNotifier) Notify(context.Context) error {
	n.calls++
	return n.err
}

const link = "https://www.coupang.com/vp/products/12345"

func newTestService(t *testing.T) (*Service, *storage.Store, *countingNotifier) {
	t.Helper()
	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close() // Ignore error in test
	})
	notifier := &countingNotifier{}
	return NewService(store, notifier), store, notifier
}

func grant(t *testing.T, svc *Service, customer string, count, days int) *types.Slot {
	t.Helper()
	slot, err := svc.CreateGrant(context.Background(), types.CreateSlotRequest{
		CustomerID:   customer,
		CustomerName: customer + " name",
		SlotCount:    count,
		UsageDays:    days,
	})
	require.NoError(t, err)
	return slot
}

func allocation(customer string, count int) types.AllocateSlotsRequest {
	return types.AllocateSlotsRequest{
		CustomerID:   customer,
		CustomerName: customer + " name",
		Keyword:      "shoes",
		LinkURL:      link,
		SlotCount:    count,
	}
}

func TestAllocate_DrawsLongestGrantFirst(t *testing.T) {
	svc, store, notifier := newTestService(t)
	ctx := context.Background()

	short := grant(t, svc, "alice", 2, 5)
	long := grant(t, svc, "alice", 2, 30)

	resp, err := svc.Allocate(ctx, allocation("alice", 3))
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.AllocatedCount)
	assert.Equal(t, 3, resp.RequestedCount)
	require.Len(t, resp.Data, 3)

	assert.Equal(t, long.ID, *resp.Data[0].SlotID)
	assert.Equal(t, long.ID, *resp.Data[1].SlotID)
	assert.Equal(t, short.ID, *resp.Data[2].SlotID)
	assert.Equal(t, 30, resp.Data[0].UsageDays)
	assert.Equal(t, 5, resp.Data[2].UsageDays)
	for _, unit := range resp.Data {
		assert.Equal(t, 1, unit.SlotCount)
		assert.NotZero(t, unit.ID)
	}

	jobs, err := store.ListKeywords(ctx, "")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "shoes", jobs[0].Keyword)
	assert.Equal(t, 1, notifier.calls)

	// second allocation for the same keyword does not queue another job
	_, err = svc.Allocate(ctx, allocation("alice", 1))
	require.NoError(t, err)
	jobs, err = store.ListKeywords(ctx, "")
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.Equal(t, 1, notifier.calls)
}

func TestAllocate_Shortfall(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	grant(t, svc, "alice", 3, 30)
	_, err := svc.Allocate(ctx, allocation("alice", 2))
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, allocation("alice", 2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientSlots))
	assert.Equal(t, "insufficient slots: available 1, requested 2", err.Error())

	var shortfall *InsufficientSlotsError
	require.True(t, errors.As(err, &shortfall))
	assert.Equal(t, 1, shortfall.Available)

	used, err := store.UsedUnits(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, used)
}

func TestAllocate_NoGrants(t *testing.T) {
	svc, _, notifier := newTestService(t)

	_, err := svc.Allocate(context.Background(), allocation("nobody", 1))
	require.Error(t, err)
	assert.Equal(t, "insufficient slots: available 0, requested 1", err.Error())
	assert.Equal(t, 0, notifier.calls)
}

func TestAllocate_NotifyFailureIsNotFatal(t *testing.T) {
	svc, _, notifier := newTestService(t)
	notifier.err = errors.New("redis down")

	grant(t, svc, "alice", 1, 30)
	resp, err := svc.Allocate(context.Background(), allocation("alice", 1))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.AllocatedCount)
}

func TestReleaseAndUnits(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	grant(t, svc, "alice", 2, 30)
	grant(t, svc, "bob", 1, 30)
	resp, err := svc.Allocate(ctx, allocation("alice", 2))
	require.NoError(t, err)
	_, err = svc.Allocate(ctx, allocation("bob", 1))
	require.NoError(t, err)

	all, err := svc.Units(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	alice, err := svc.Units(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, 1, alice[0].ID)
	assert.Equal(t, 29, alice[0].RemainingDays)

	require.NoError(t, svc.Release(ctx, resp.Data[0].ID))
	err = svc.Release(ctx, resp.Data[0].ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	alice, err = svc.Units(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, alice, 1)
}

func TestGrantsAndSummary(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	grant(t, svc, "alice", 3, 30)
	grant(t, svc, "bob", 2, 10)
	_, err := svc.Allocate(ctx, allocation("alice", 2))
	require.NoError(t, err)

	views, stats, err := svc.Grants(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, types.SlotStats{TotalSlots: 5, UsedSlots: 2, RemainingSlots: 3, TotalCustomers: 2}, stats)

	views, _, err = svc.Grants(ctx, "", "BOB")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "bob", views[0].CustomerID)

	summary, stats, err := svc.Summary(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice name", summary.CustomerName)
	assert.Equal(t, 3, summary.SlotCount)
	assert.Equal(t, 2, summary.UsedSlots)
	assert.Equal(t, 1, summary.RemainingSlots)
	assert.Equal(t, types.SlotActive, summary.Status)
	assert.Len(t, summary.SlotStatusData, 2)
	assert.Equal(t, 1, stats.TotalCustomers)
}
