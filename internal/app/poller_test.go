package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotes/internal/domain"
	"github.com/jsamuelsen/quotes/internal/mocks"
)

const testURL = "https://example.test/api/random"

func TestNewPoller_PanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() { NewPoller(PollerConfig{}) })
}

func TestPoller_PollOnce(t *testing.T) {
	fetched := []domain.Quote{
		{Text: "one", Author: "A"},
		{Text: "", Author: "B"},
		{Text: "three", Author: "C"},
	}

	store := mocks.NewMockQuoteStore(t)
	store.EXPECT().Create(mock.Anything, mock.MatchedBy(func(q domain.Quote) bool { return q.Text == "one" })).
		Return(int64(1), nil)
	store.EXPECT().Create(mock.Anything, mock.MatchedBy(func(q domain.Quote) bool { return q.Text == "three" })).
		Return(int64(2), nil)

	source := mocks.NewMockQuoteSource(t)
	source.EXPECT().Fetch(mock.Anything, testURL).Return(fetched, nil)

	poller := NewPoller(PollerConfig{
		Service: newTestService(store),
		Source:  source,
		Logger:  discardLogger(),
	})

	result, err := poller.PollOnce(context.Background(), testURL)
	require.NoError(t, err)
	assert.Equal(t, PollResult{Fetched: 3, Added: 2, Skipped: 1}, result)
}

func TestPoller_PollOnce_SkipsSeen(t *testing.T) {
	old := domain.Quote{Text: "old", Author: "A"}
	fresh := domain.Quote{Text: "fresh", Author: "B"}

	store := mocks.NewMockQuoteStore(t)
	store.EXPECT().Create(mock.Anything, mock.MatchedBy(func(q domain.Quote) bool { return q.Text == "fresh" })).
		Return(int64(5), nil)

	source := mocks.NewMockQuoteSource(t)
	source.EXPECT().Fetch(mock.Anything, testURL).Return([]domain.Quote{old, fresh}, nil)

	cache := mocks.NewMockCache(t)
	cache.EXPECT().Get(mock.Anything, Fingerprint(old)).Return([]byte{1}, nil)
	cache.EXPECT().Get(mock.Anything, Fingerprint(fresh)).Return(nil, domain.ErrNotFound)
	cache.EXPECT().Set(mock.Anything, Fingerprint(fresh), []byte{1}, 3600).Return(nil)

	poller := NewPoller(PollerConfig{
		Service: newTestService(store),
		Source:  source,
		Seen:    cache,
		SeenTTL: time.Hour,
		Logger:  discardLogger(),
	})

	result, err := poller.PollOnce(context.Background(), testURL)
	require.NoError(t, err)
	assert.Equal(t, PollResult{Fetched: 2, Added: 1, Skipped: 1}, result)
}

func TestPoller_PollOnce_StoreFailure(t *testing.T) {
	store := mocks.NewMockQuoteStore(t)
	store.EXPECT().Create(mock.Anything, mock.Anything).Return(int64(0), errors.New("disk full"))

	source := mocks.NewMockQuoteSource(t)
	source.EXPECT().Fetch(mock.Anything, testURL).Return([]domain.Quote{{Text: "x"}}, nil)

	poller := NewPoller(PollerConfig{Service: newTestService(store), Source: source, Logger: discardLogger()})

	_, err := poller.PollOnce(context.Background(), testURL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestPoller_Run_ContinuesAfterFetchErrorsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := mocks.NewMockQuoteStore(t)
	store.EXPECT().Create(mock.Anything, mock.Anything).Return(int64(1), nil)

	calls := 0
	source := mocks.NewMockQuoteSource(t)
	source.EXPECT().Fetch(mock.Anything, testURL).RunAndReturn(func(context.Context, string) ([]domain.Quote, error) {
		calls++

		switch calls {
		case 1:
			return nil, domain.NewBadRequestError(testURL, "status 500")
		case 2:
			return nil, domain.NewUnavailableError("zenquotes", "connection refused")
		default:
			cancel()
			return []domain.Quote{{Text: "finally"}}, nil
		}
	})

	poller := NewPoller(PollerConfig{Service: newTestService(store), Source: source, Logger: discardLogger()})

	err := poller.Run(ctx, testURL, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPoller_Run_StopsOnStoreError(t *testing.T) {
	store := mocks.NewMockQuoteStore(t)
	store.EXPECT().Create(mock.Anything, mock.Anything).Return(int64(0), errors.New("constraint violated"))

	source := mocks.NewMockQuoteSource(t)
	source.EXPECT().Fetch(mock.Anything, testURL).Return([]domain.Quote{{Text: "x"}}, nil)

	poller := NewPoller(PollerConfig{Service: newTestService(store), Source: source, Logger: discardLogger()})

	err := poller.Run(context.Background(), testURL, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint violated")
}

func TestPoller_Run_ReturnsWhenAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	poller := NewPoller(PollerConfig{
		Service: newTestService(mocks.NewMockQuoteStore(t)),
		Source:  mocks.NewMockQuoteSource(t),
		Logger:  discardLogger(),
	})

	require.NoError(t, poller.Run(ctx, testURL, time.Hour))
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(domain.Quote{Text: "x", Author: "y"})

	assert.Equal(t, a, Fingerprint(domain.Quote{ID: 9, Text: "x", Author: "y"}))
	assert.NotEqual(t, a, Fingerprint(domain.Quote{Text: "xy"}))
	assert.Contains(t, a, "seen:")
}

func TestMapLimit(t *testing.T) {
	out, err := MapLimit(context.Background(), 2, []int{1, 2, 3}, func(_ context.Context, n int) (int, error) {
		return n * n, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9}, out)

	_, err = MapLimit(context.Background(), 0, []int{1, 2}, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, assert.AnError
		}

		return n, nil
	})
	require.ErrorIs(t, err, assert.AnError)
}

type recordingObserver struct {
	results []PollResult
	errs    []error
}

func (o *recordingObserver) ObservePoll(fetched, added, skipped int, err error) {
	o.results = append(o.results, PollResult{Fetched: fetched, Added: added, Skipped: skipped})
	o.errs = append(o.errs, err)
}

func TestPoller_Run_ReportsToObserver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := mocks.NewMockQuoteStore(t)
	store.EXPECT().Create(mock.Anything, mock.Anything).Return(int64(1), nil)

	var calls atomic.Int32

	source := mocks.NewMockQuoteSource(t)
	source.EXPECT().Fetch(mock.Anything, testURL).RunAndReturn(func(context.Context, string) ([]domain.Quote, error) {
		if calls.Add(1) == 1 {
			return nil, domain.NewBadRequestError(testURL, "malformed payload")
		}

		return []domain.Quote{{Text: "kept"}}, nil
	})

	observer := &recordingObserver{}
	poller := NewPoller(PollerConfig{
		Service:  newTestService(store),
		Source:   source,
		Observer: observer,
		Logger:   discardLogger(),
	})

	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx, testURL, time.Millisecond) }()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.GreaterOrEqual(t, len(observer.results), 2)
	assert.True(t, domain.IsBadRequest(observer.errs[0]))
	assert.Equal(t, PollResult{Fetched: 1, Added: 1}, observer.results[1])
}
