package resource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   string
	Name string
}

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) List(ctx context.Context) ([]item, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]item), args.Error(1)
}

func (m *mockBackend) Create(ctx context.Context, it item) (item, error) {
	args := m.Called(ctx, it)
	return args.Get(0).(item), args.Error(1)
}

func (m *mockBackend) Update(ctx context.Context, id string, it item) (item, error) {
	args := m.Called(ctx, id, it)
	return args.Get(0).(item), args.Error(1)
}

func (m *mockBackend) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func itemID(it item) string { return it.ID }

func TestStore_LoadAndMutate(t *testing.T) {
	backend := new(mockBackend)
	store := NewStore[item]("items", backend, itemID, nil)
	ctx := context.Background()

	backend.On("List", mock.Anything).Return([]item{{ID: "1", Name: "one"}, {ID: "2", Name: "two"}}, nil)
	backend.On("Create", ctx, item{Name: "three"}).Return(item{ID: "3", Name: "three"}, nil)
	backend.On("Update", ctx, "1", item{ID: "1", Name: "uno"}).Return(item{ID: "1", Name: "uno"}, nil)
	backend.On("Delete", ctx, "2").Return(nil)

	_, err := store.Load(ctx)
	require.NoError(t, err)

	_, err = store.Create(ctx, item{Name: "three"})
	require.NoError(t, err)
	_, err = store.Update(ctx, "1", item{ID: "1", Name: "uno"})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "2"))

	state := store.State()
	assert.Equal(t, []item{{ID: "1", Name: "uno"}, {ID: "3", Name: "three"}}, state.Items)
	assert.Empty(t, state.Error)
	assert.False(t, state.Loading)
	assert.False(t, state.Updating)
	assert.False(t, state.LoadedAt.IsZero())
	backend.AssertExpectations(t)
}

func TestStore_FailureRecordedAndZeroValueReturned(t *testing.T) {
	backend := new(mockBackend)
	store := NewStore[item]("items", backend, itemID, nil)
	ctx := context.Background()

	backend.On("List", mock.Anything).Return(nil, errors.New("boom"))
	backend.On("Update", ctx, "9", item{ID: "9"}).Return(item{}, errors.New("not found"))

	items, err := store.Load(ctx)
	require.Error(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	assert.Equal(t, "boom", store.State().Error)

	got, err := store.Update(ctx, "9", item{ID: "9"})
	require.Error(t, err)
	assert.Equal(t, item{}, got)
	assert.Equal(t, "not found", store.State().Error)
}

// blockingBackend parks Update and List until released.
type blockingBackend struct {
	mockBackend
	release   chan struct{}
	entered   chan struct{}
	listCalls int32
}

func (b *blockingBackend) Update(ctx context.Context, id string, it item) (item, error) {
	b.entered <- struct{}{}
	<-b.release
	return it, nil
}

func (b *blockingBackend) List(ctx context.Context) ([]item, error) {
	atomic.AddInt32(&b.listCalls, 1)
	<-b.release
	return []item{{ID: "1"}}, nil
}

func TestStore_SecondMutationOnSameIDFailsFast(t *testing.T) {
	backend := &blockingBackend{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	store := NewStore[item]("items", backend, itemID, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := store.Update(ctx, "1", item{ID: "1"})
		done <- err
	}()
	<-backend.entered

	assert.True(t, store.State().Updating)
	_, err := store.Update(ctx, "1", item{ID: "1", Name: "again"})
	assert.ErrorIs(t, err, ErrInFlight)

	close(backend.release)
	require.NoError(t, <-done)
	assert.False(t, store.State().Updating)
}

func TestStore_ConcurrentLoadsCollapse(t *testing.T) {
	backend := &blockingBackend{release: make(chan struct{})}
	store := NewStore[item]("items", backend, itemID, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Load(context.Background())
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&backend.listCalls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&backend.listCalls))
	assert.Len(t, store.State().Items, 1)
}

func TestSearch(t *testing.T) {
	items := []item{{ID: "1", Name: "North Tower"}, {ID: "2", Name: "South Wing"}, {ID: "3", Name: "northgate"}}
	fields := func(it item) []string { return []string{it.ID, it.Name} }

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "empty matches all", query: "", want: []string{"1", "2", "3"}},
		{name: "case insensitive", query: "NORTH", want: []string{"1", "3"}},
		{name: "matches id field", query: "2", want: []string{"2"}},
		{name: "no match", query: "east", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Search(items, tt.query, fields)
			ids := make([]string, 0, len(got))
			for _, it := range got {
				ids = append(ids, it.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

type callerKey struct{}

func withCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func callerOf(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey{}).(string)
	return caller
}

// perCallerBackend answers List with the caller's own item once released.
type perCallerBackend struct {
	mockBackend
	release   chan struct{}
	listCalls int32
}

func (b *perCallerBackend) List(ctx context.Context) ([]item, error) {
	atomic.AddInt32(&b.listCalls, 1)
	<-b.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []item{{ID: callerOf(ctx)}}, nil
}

func TestStore_LoadsArePartitionedByKey(t *testing.T) {
	backend := &perCallerBackend{release: make(chan struct{})}
	store := NewStore[item]("items", backend, itemID, nil, WithLoadKey(callerOf))

	ctxA, cancelA := context.WithCancel(withCaller(context.Background(), "admin-a"))
	errA := make(chan error, 1)
	go func() {
		_, err := store.Load(ctxA)
		errA <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&backend.listCalls) == 1 }, time.Second, time.Millisecond)

	gotB := make(chan []item, 1)
	go func() {
		items, err := store.Load(withCaller(context.Background(), "admin-b"))
		assert.NoError(t, err)
		gotB <- items
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&backend.listCalls) == 2 }, time.Second, time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(backend.release)
	assert.Equal(t, []item{{ID: "admin-b"}}, <-gotB)
}

func TestStore_SharedLoadSurvivesFirstCallerCancel(t *testing.T) {
	backend := &perCallerBackend{release: make(chan struct{})}
	store := NewStore[item]("items", backend, itemID, nil, WithLoadKey(callerOf))

	ctxFirst, cancelFirst := context.WithCancel(withCaller(context.Background(), "admin-a"))
	errFirst := make(chan error, 1)
	go func() {
		_, err := store.Load(ctxFirst)
		errFirst <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&backend.listCalls) == 1 }, time.Second, time.Millisecond)

	gotSecond := make(chan []item, 1)
	go func() {
		items, err := store.Load(withCaller(context.Background(), "admin-a"))
		assert.NoError(t, err)
		gotSecond <- items
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-errFirst, context.Canceled)

	close(backend.release)
	assert.Equal(t, []item{{ID: "admin-a"}}, <-gotSecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&backend.listCalls))
}
