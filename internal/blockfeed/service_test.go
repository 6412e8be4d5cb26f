package blockfeed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gabapcia/blockscope/internal/blockwindow"
	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/chain/mocks"
	"github.com/gabapcia/blockscope/internal/pkg/logger"
	"github.com/gabapcia/blockscope/internal/pkg/resilience/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func init() {
	_ = logger.Init("error")
}

type countingObserver struct {
	blocks, transactions, failures, stale atomic.Int64
}

func (o *countingObserver) ObserveBlockAdmitted()       { o.blocks.Add(1) }
func (o *countingObserver) ObserveTransactionAdmitted() { o.transactions.Add(1) }
func (o *countingObserver) ObserveFetchFailure(string)  { o.failures.Add(1) }
func (o *countingObserver) ObserveStaleResult(string)   { o.stale.Add(1) }

type failureRecorder struct {
	mu       sync.Mutex
	failures []FetchFailure
}

func (r *failureRecorder) handle(_ context.Context, f FetchFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

func (r *failureRecorder) all() []FetchFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FetchFailure(nil), r.failures...)
}

func fastRetry() retry.Retry {
	return retry.New(retry.WithAttempts(0), retry.WithDelay(time.Millisecond), retry.WithMaxDelay(5*time.Millisecond))
}

func subscribe(provider *mocks.Provider) chan uint64 {
	numbersCh := make(chan uint64)
	provider.On("SubscribeNewBlocks", mock.Anything).Return((<-chan uint64)(numbersCh), nil).Once()
	provider.On("RemoveAllListeners").Return().Maybe()
	return numbersCh
}

func TestService_Start(t *testing.T) {
	t.Run("second start fails", func(t *testing.T) {
		store := blockwindow.New()
		provider := mocks.NewProvider(t)
		subscribe(provider)

		svc := New(store)
		require.NoError(t, svc.Start(t.Context(), store.Generation(), provider))
		defer svc.Stop()

		err := svc.Start(t.Context(), store.Generation(), provider)
		assert.ErrorIs(t, err, ErrServiceAlreadyStarted)
	})

	t.Run("subscription failures are retried in the background", func(t *testing.T) {
		store := blockwindow.New()
		provider := mocks.NewProvider(t)
		numbersCh := make(chan uint64)
		provider.On("SubscribeNewBlocks", mock.Anything).Return(nil, chain.ErrConnection).Twice()
		provider.On("SubscribeNewBlocks", mock.Anything).Return((<-chan uint64)(numbersCh), nil).Once()
		provider.On("RemoveAllListeners").Return().Maybe()
		provider.On("GetBlock", mock.Anything, uint64(5)).Return(chain.Block{Number: 5}, nil).Once()

		svc := New(store, WithSubscribeRetry(fastRetry()))
		require.NoError(t, svc.Start(t.Context(), store.Generation(), provider))
		defer svc.Stop()

		numbersCh <- 5

		assert.Eventually(t, func() bool { return store.Contains(5) }, waitFor, tick)
	})

	t.Run("stop ends a failing subscription", func(t *testing.T) {
		store := blockwindow.New()
		provider := mocks.NewProvider(t)
		var attempts atomic.Int64
		provider.On("SubscribeNewBlocks", mock.Anything).Return(nil, chain.ErrConnection).
			Run(func(mock.Arguments) { attempts.Add(1) })
		provider.On("RemoveAllListeners").Return().Once()

		svc := New(store, WithSubscribeRetry(fastRetry()))
		require.NoError(t, svc.Start(t.Context(), store.Generation(), provider))
		assert.Eventually(t, func() bool { return attempts.Load() >= 2 }, waitFor, tick)

		svc.Stop()
		assert.False(t, svc.isStarted)
	})

	t.Run("stop unregisters the listener and allows restart", func(t *testing.T) {
		store := blockwindow.New()
		provider := mocks.NewProvider(t)
		provider.On("SubscribeNewBlocks", mock.Anything).Return((<-chan uint64)(make(chan uint64)), nil).Twice()
		provider.On("RemoveAllListeners").Return().Twice()

		svc := New(store)
		require.NoError(t, svc.Start(t.Context(), store.Generation(), provider))
		svc.Stop()
		svc.Stop()

		require.NoError(t, svc.Start(t.Context(), store.Generation(), provider))
		svc.Stop()
	})
}

func TestService_Ingest(t *testing.T) {
	t.Run("admits blocks and their transactions", func(t *testing.T) {
		store := blockwindow.New()
		provider := mocks.NewProvider(t)
		numbersCh := subscribe(provider)
		observer := new(countingObserver)

		provider.On("GetBlock", mock.Anything, uint64(10)).
			Return(chain.Block{Number: 10, TransactionHashes: []string{"0xa", "0xb"}}, nil).Once()
		provider.On("GetTransaction", mock.Anything, "0xa").
			Return(chain.Transaction{Hash: "0xa", BlockNumber: 10}, nil).Once()
		provider.On("GetTransaction", mock.Anything, "0xb").
			Return(chain.Transaction{Hash: "0xb", BlockNumber: 10}, nil).Once()

		svc := New(store, WithObserver(observer))
		require.NoError(t, svc.Start(t.Context(), store.Generation(), provider))
		defer svc.Stop()

		numbersCh <- 10

		assert.Eventually(t, func() bool {
			_, txs := store.Len()
			return store.Contains(10) && txs == 2
		}, waitFor, tick)
		assert.Equal(t, int64(1), observer.blocks.Load())
		assert.Equal(t, int64(2), observer.transactions.Load())
	})

	t.Run("duplicate pushes fetch once", func(t *testing.T) {
		store := blockwindow.New()
		provider := mocks.NewProvider(t)
		numbersCh := subscribe(provider)

		gate := make(chan struct{})
		provider.On("GetBlock", mock.Anything, uint64(20)).
			Return(func(ctx context.Context, n uint64) (chain.Block, error) {
				<-gate
				return chain.Block{Number: n}, nil
			}).Once()

		svc := New(store)
		require.NoError(t, svc.Start(t.Context(), store.Generation(), provider))
		defer svc.Stop()

		numbersCh <- 20
		numbersCh <- 20
		close(gate)

		assert.Eventually(t, func() bool { return store.Contains(20) }, waitFor, tick)

		numbersCh <- 20
		numbersCh <- 20

		blocks, _ := store.Len()
		assert.Equal(t, 1, blocks)
	})

	t.Run("push older than a full window is not fetched", func(t *testing.T) {
		store := blockwindow.New(blockwindow.WithBlockCapacity(2))
		store.AdmitBlock(chain.Block{Number: 10})
		store.AdmitBlock(chain.Block{Number: 11})

		provider := mocks.NewProvider(t)
		numbersCh := subscribe(provider)
		provider.On("GetBlock", mock.Anything, uint64(12)).Return(chain.Block{Number: 12}, nil).Once()

		svc := New(store)
		require.NoError(t, svc.Start(t.Context(), store.Generation(), provider))
		defer svc.Stop()

		numbersCh <- 5
		numbersCh <- 5
		numbersCh <- 12

		assert.Eventually(t, func() bool { return store.Contains(12) }, waitFor, tick)
		provider.AssertNotCalled(t, "GetBlock", mock.Anything, uint64(5))
	})

	t.Run("block evicted on admission skips its transactions", func(t *testing.T) {
		store := blockwindow.New(blockwindow.WithBlockCapacity(2))
		store.AdmitBlock(chain.Block{Number: 10})

		provider := mocks.NewProvider(t)
		numbersCh := subscribe(provider)
		observer := new(countingObserver)

		started := make(chan struct{})
		gate := make(chan struct{})
		provider.On("GetBlock", mock.Anything, uint64(9)).
			Return(func(ctx context.Context, n uint64) (chain.Block, error) {
				close(started)
				<-gate
				return chain.Block{Number: n, TransactionHashes: []string{"0xold"}}, nil
			}).Once()

		svc := New(store, WithObserver(observer))
		require.NoError(t, svc.Start(t.Context(), store.Generation(), provider))

		numbersCh <- 9
		<-started
		store.AdmitBlock(chain.Block{Number: 11})
		store.AdmitBlock(chain.Block{Number: 12})
		close(gate)

		assert.Eventually(t, func() bool { return observer.blocks.Load() == 1 }, waitFor, tick)
		svc.Stop()

		_, txs := store.Len()
		assert.Zero(t, txs)
		assert.False(t, store.Contains(9))
		provider.AssertNotCalled(t, "GetTransaction", mock.Anything, "0xold")
	})

	t.Run("failed block fetch is dropped and can be retried by a later push", func(t *testing.T) {
		store := blockwindow.New()
		provider := mocks.NewProvider(t)
		numbersCh := subscribe(provider)
		recorder := new(failureRecorder)

		provider.On("GetBlock", mock.Anything, uint64(11)).Return(chain.Block{}, chain.ErrConnection).Once()
		provider.On("GetBlock", mock.Anything, uint64(11)).Return(chain.Block{Number: 11}, nil).Once()

		svc := New(store, WithFetchFailureHandler(recorder.handle))
		require.NoError(t, svc.Start(t.Context(), store.Generation(), provider))
		defer svc.Stop()

		numbersCh <- 11
		assert.Eventually(t, func() bool { return len(recorder.all()) == 1 }, waitFor, tick)
		assert.False(t, store.Contains(11))

		assert.Eventually(t, func() bool {
			numbersCh <- 11
			return store.Contains(11)
		}, waitFor, tick)

		failure := recorder.all()[0]
		assert.Equal(t, uint64(11), failure.BlockNumber)
		assert.Equal(t, "block", failure.Resource())
		assert.ErrorIs(t, failure.Err, chain.ErrConnection)
	})

	t.Run("missing transaction is dropped without affecting siblings", func(t *testing.T) {
		store := blockwindow.New()
		provider := mocks.NewProvider(t)
		numbersCh := subscribe(provider)
		recorder := new(failureRecorder)

		provider.On("GetBlock", mock.Anything, uint64(30)).
			Return(chain.Block{Number: 30, TransactionHashes: []string{"0xgone", "0xok"}}, nil).Once()
		provider.On("GetTransaction", mock.Anything, "0xgone").
			Return(chain.Transaction{}, chain.ErrNotFound).Once()
		provider.On("GetTransaction", mock.Anything, "0xok").
			Return(chain.Transaction{Hash: "0xok"}, nil).Once()

		svc := New(store, WithFetchFailureHandler(recorder.handle))
		require.NoError(t, svc.Start(t.Context(), store.Generation(), provider))
		defer svc.Stop()

		numbersCh <- 30

		assert.Eventually(t, func() bool {
			_, txs := store.Len()
			return txs == 1 && len(recorder.all()) == 1
		}, waitFor, tick)

		failure := recorder.all()[0]
		assert.Equal(t, "0xgone", failure.TransactionHash)
		assert.Equal(t, "transaction", failure.Resource())
		assert.True(t, errors.Is(failure.Err, chain.ErrNotFound))
	})

	t.Run("results completing after a reset are discarded", func(t *testing.T) {
		store := blockwindow.New()
		provider := mocks.NewProvider(t)
		numbersCh := subscribe(provider)
		observer := new(countingObserver)

		started := make(chan struct{})
		gate := make(chan struct{})
		provider.On("GetBlock", mock.Anything, uint64(40)).
			Return(func(ctx context.Context, n uint64) (chain.Block, error) {
				close(started)
				<-gate
				return chain.Block{Number: n}, nil
			}).Once()

		svc := New(store, WithObserver(observer))
		require.NoError(t, svc.Start(t.Context(), store.Generation(), provider))
		defer svc.Stop()

		numbersCh <- 40
		<-started

		store.Reset()
		close(gate)

		assert.Eventually(t, func() bool { return observer.stale.Load() == 1 }, waitFor, tick)
		assert.False(t, store.Contains(40))
		assert.Zero(t, observer.blocks.Load())
	})

	t.Run("stop cancels in-flight fetches", func(t *testing.T) {
		store := blockwindow.New()
		provider := mocks.NewProvider(t)
		numbersCh := subscribe(provider)
		recorder := new(failureRecorder)

		started := make(chan struct{})
		provider.On("GetBlock", mock.Anything, uint64(50)).
			Return(func(ctx context.Context, n uint64) (chain.Block, error) {
				close(started)
				<-ctx.Done()
				return chain.Block{}, ctx.Err()
			}).Once()

		svc := New(store, WithFetchFailureHandler(recorder.handle))
		require.NoError(t, svc.Start(t.Context(), store.Generation(), provider))

		numbersCh <- 50
		<-started
		svc.Stop()

		assert.Empty(t, recorder.all())
		assert.False(t, store.Contains(50))
		provider.AssertCalled(t, "RemoveAllListeners")
	})
}

func TestFetchFailure_Resource(t *testing.T) {
	assert.Equal(t, "block", FetchFailure{BlockNumber: 1}.Resource())
	assert.Equal(t, "transaction", FetchFailure{BlockNumber: 1, TransactionHash: "0x1"}.Resource())
}
