package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rossigee/slot-rank-tracker/internal/storage"
	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStore struct {
	expireErr  error
	recheckErr error
	queued     int64
	calls      []string
}

func (f *fakeStore) ExpireDueSlots(context.Context) (int64, error) {
	f.calls = append(f.calls, "expire")
	return 0, f.expireErr
}

func (f *fakeStore) EnqueueRechecks(context.Context) (int64, error) {
	f.calls = append(f.calls, "recheck")
	return f.queued, f.recheckErr
}

type countingNotifier struct {
	calls int
}

func (n *countingNotifier) Notify(context.Context) error {
	n.calls++
	return nil
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New(&fakeStore{}, nil, "every now and then")
	assert.Error(t, err)

	_, err = New(&fakeStore{}, nil, "@every 6h")
	assert.NoError(t, err)

	_, err = New(&fakeStore{}, nil, DefaultSpec)
	assert.NoError(t, err)
}

func TestRunOnce(t *testing.T) {
	store := &fakeStore{queued: 2}
	notifier := &countingNotifier{}
	s, err := New(store, notifier, DefaultSpec)
	require.NoError(t, err)

	queued, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), queued)
	assert.Equal(t, []string{"expire", "recheck"}, store.calls)
	assert.Equal(t, 1, notifier.calls)

	store.queued = 0
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.calls)
}

func TestRunOnce_Errors(t *testing.T) {
	store := &fakeStore{expireErr: errors.New("db locked")}
	s, err := New(store, nil, DefaultSpec)
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "failed to expire slots")
	assert.Equal(t, []string{"expire"}, store.calls)

	store.expireErr = nil
	store.recheckErr = errors.New("db locked")
	_, err = s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "failed to queue rechecks")
}

func TestRunOnce_Store(t *testing.T) {
	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	defer func() {
		_ = store.Close() // Ignore error in test
	}()
	ctx := context.Background()

	grant := &types.Slot{CustomerID: "cust", SlotCount: 2, UsageDays: 30}
	require.NoError(t, store.CreateSlot(ctx, grant))
	_, err = store.InsertSlotStatuses(ctx, []types.SlotStatus{
		{SlotID: &grant.ID, CustomerID: "cust", Keyword: "shoes", LinkURL: "https://www.coupang.com/vp/products/1", UsageDays: 30},
	})
	require.NoError(t, err)

	s, err := New(store, nil, DefaultSpec)
	require.NoError(t, err)

	queued, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), queued)

	queued, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), queued)
}

func TestStartStop(t *testing.T) {
	s, err := New(&fakeStore{}, nil, "@every 1h")
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
