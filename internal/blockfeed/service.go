// Package blockfeed ingests newly mined blocks from a chain provider into
// the block window.
//
// Every pushed block number moves through unseen → pending → admitted. A
// number that is pending or already in the window is ignored. Admitted
// blocks fan out one transaction fetch per hash. Fetch failures are
// reported and dropped; the number falls back to unseen so a later push can
// try again. Results that complete after the session moved on are discarded
// by the window's generation check. A failing subscription is retried in the
// background until it succeeds or the session stops.
package blockfeed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/pkg/logger"
	"github.com/gabapcia/blockscope/internal/pkg/resilience/retry"
	"github.com/gabapcia/blockscope/internal/pkg/types"
	"github.com/gabapcia/blockscope/internal/pkg/x/chflow"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var ErrServiceAlreadyStarted = errors.New("service already started")

const (
	defaultFetchConcurrency       = 16
	defaultTransactionConcurrency = 8

	defaultSubscribeDelay    = time.Second
	defaultSubscribeMaxDelay = 30 * time.Second
)

// Window is the subset of the block window used by the pipeline.
type Window interface {
	AdmitBlockAt(generation uint64, block chain.Block) bool
	AdmitTransactionAt(generation uint64, tx chain.Transaction) bool
	Contains(number uint64) bool
	Retains(number uint64) bool
	IsCurrent(generation uint64) bool
}

// Service runs one ingestion session at a time.
type Service interface {
	// Start subscribes to provider's new-block feed and ingests under
	// generation until Stop is called or ctx is canceled. Subscription
	// failures do not fail Start; they are logged and retried.
	Start(ctx context.Context, generation uint64, provider chain.Provider) error

	// Stop unregisters the provider listener, cancels in-flight fetches and
	// waits for the session goroutines to exit. Calling Stop on a stopped
	// service is a no-op.
	Stop()
}

type closeFunc func()
type fetchFailureHandler func(ctx context.Context, failure FetchFailure)

type service struct {
	mu        sync.Mutex
	isStarted bool
	closeFunc closeFunc

	window         Window
	sem            *semaphore.Weighted
	subscribeRetry retry.Retry

	transactionConcurrency int
	fetchFailureHandler    fetchFailureHandler
	observer               Observer
	instruments            instruments
}

var _ Service = (*service)(nil)

// session holds the state of one Start/Stop cycle.
type session struct {
	generation uint64
	provider   chain.Provider

	mu      sync.Mutex
	pending types.Set[uint64]
}

func (s *service) Start(ctx context.Context, generation uint64, provider chain.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStarted {
		return ErrServiceAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	ctx = logger.Derive(ctx, "session.generation", generation)

	sess := &session{
		generation: generation,
		provider:   provider,
		pending:    types.NewSet[uint64](),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		numbersCh, ok := s.subscribe(ctx, provider)
		if !ok {
			return
		}
		s.consume(ctx, sess, numbersCh, &wg)
	}()

	s.closeFunc = func() {
		provider.RemoveAllListeners()
		cancel()
		wg.Wait()
	}
	s.isStarted = true

	logger.Info(ctx, "block feed started")
	return nil
}

func (s *service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeFunc != nil {
		s.closeFunc()
	}
	s.isStarted = false
	s.closeFunc = nil
}

// subscribe registers the new-block listener, retrying until it succeeds.
// It reports false if ctx ended first.
func (s *service) subscribe(ctx context.Context, provider chain.Provider) (<-chan uint64, bool) {
	var numbersCh <-chan uint64
	err := s.subscribeRetry.Execute(ctx, func() error {
		ch, err := provider.SubscribeNewBlocks(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn(ctx, "subscribe to new blocks failed", "error", err)
			}
			return err
		}

		numbersCh = ch
		return nil
	})
	if err != nil || numbersCh == nil {
		return nil, false
	}

	return numbersCh, true
}

// consume reads pushed block numbers until the feed closes or ctx is done,
// launching one ingestion per unseen number.
func (s *service) consume(ctx context.Context, sess *session, numbersCh <-chan uint64, wg *sync.WaitGroup) {
	for {
		number, ok := chflow.Receive(ctx, numbersCh)
		if !ok {
			return
		}

		if !s.claim(sess, number) {
			logger.Debug(ctx, "block already known", "block.number", number)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ingestBlock(ctx, sess, number)
		}()
	}
}

// claim marks number as pending unless it is already pending, admitted, or
// too old to survive admission into the window.
func (s *service) claim(sess *session, number uint64) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.pending.Has(number) || s.window.Contains(number) || !s.window.Retains(number) {
		return false
	}

	sess.pending.Add(number)
	return true
}

// release returns number to unseen, or hands it over to the window after admission.
func (sess *session) release(number uint64) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.pending.Delete(number)
}

func (s *service) ingestBlock(ctx context.Context, sess *session, number uint64) {
	defer sess.release(number)

	ctx = logger.Derive(ctx, "block.number", number)

	block, err := s.fetchBlock(ctx, sess.provider, number)
	if err != nil {
		if s.isStale(ctx, sess) {
			s.discardStale(ctx, resourceBlock)
			return
		}

		s.reportFailure(ctx, FetchFailure{Generation: sess.generation, BlockNumber: number, Err: err})
		return
	}

	if !s.window.AdmitBlockAt(sess.generation, block) {
		if s.isStale(ctx, sess) {
			s.discardStale(ctx, resourceBlock)
		}
		return
	}

	s.observer.ObserveBlockAdmitted()
	s.instruments.blocksAdmitted.Add(ctx, 1)
	logger.Debug(ctx, "block admitted", "block.transactions", block.TransactionCount())

	if !s.window.Contains(block.Number) {
		logger.Debug(ctx, "block evicted on admission, skipping transactions")
		return
	}

	s.fanOutTransactions(ctx, sess, block)
}

func (s *service) fetchBlock(ctx context.Context, provider chain.Provider, number uint64) (chain.Block, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return chain.Block{}, err
	}
	defer s.sem.Release(1)

	return provider.GetBlock(ctx, number)
}

// fanOutTransactions fetches every transaction of block concurrently and
// appends each one to the window as it completes.
func (s *service) fanOutTransactions(ctx context.Context, sess *session, block chain.Block) {
	var g errgroup.Group
	g.SetLimit(s.transactionConcurrency)

	for _, hash := range block.TransactionHashes {
		g.Go(func() error {
			return s.ingestTransaction(ctx, sess, block.Number, hash)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Debug(ctx, "transaction fan-out incomplete", "error", err)
	}
}

func (s *service) ingestTransaction(ctx context.Context, sess *session, blockNumber uint64, hash string) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.discardStale(ctx, resourceTransaction)
		return err
	}

	tx, err := sess.provider.GetTransaction(ctx, hash)
	s.sem.Release(1)

	if err != nil {
		if s.isStale(ctx, sess) {
			s.discardStale(ctx, resourceTransaction)
			return err
		}

		s.reportFailure(ctx, FetchFailure{
			Generation:      sess.generation,
			BlockNumber:     blockNumber,
			TransactionHash: hash,
			Err:             err,
		})
		return err
	}

	if !s.window.AdmitTransactionAt(sess.generation, tx) {
		s.discardStale(ctx, resourceTransaction)
		return nil
	}

	s.observer.ObserveTransactionAdmitted()
	s.instruments.transactionsAdmitted.Add(ctx, 1)
	return nil
}

// isStale reports whether the session no longer owns the window.
func (s *service) isStale(ctx context.Context, sess *session) bool {
	return ctx.Err() != nil || !s.window.IsCurrent(sess.generation)
}

func (s *service) discardStale(ctx context.Context, resource string) {
	s.observer.ObserveStaleResult(resource)
	s.instruments.recordStale(ctx, resource)
}

func (s *service) reportFailure(ctx context.Context, failure FetchFailure) {
	resource := failure.Resource()

	s.observer.ObserveFetchFailure(resource)
	s.instruments.recordFailure(ctx, resource)

	if s.fetchFailureHandler != nil {
		s.fetchFailureHandler(ctx, failure)
	}
}

type config struct {
	fetchConcurrency       int64
	transactionConcurrency int
	fetchFailureHandler    fetchFailureHandler
	observer               Observer
	subscribeRetry         retry.Retry
}

// Option configures the pipeline.
type Option func(*config)

// New creates a pipeline writing into window.
func New(window Window, opts ...Option) *service {
	cfg := config{
		fetchConcurrency:       defaultFetchConcurrency,
		transactionConcurrency: defaultTransactionConcurrency,
		fetchFailureHandler:    defaultOnFetchFailure,
		observer:               nopObserver{},
		subscribeRetry: retry.New(
			retry.WithAttempts(0),
			retry.WithDelay(defaultSubscribeDelay),
			retry.WithMaxDelay(defaultSubscribeMaxDelay),
		),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &service{
		window:                 window,
		sem:                    semaphore.NewWeighted(cfg.fetchConcurrency),
		subscribeRetry:         cfg.subscribeRetry,
		transactionConcurrency: cfg.transactionConcurrency,
		fetchFailureHandler:    cfg.fetchFailureHandler,
		observer:               cfg.observer,
		instruments:            newInstruments(),
	}
}

func defaultOnFetchFailure(ctx context.Context, failure FetchFailure) {
	if errors.Is(failure.Err, chain.ErrNotFound) {
		logger.Warn(ctx, "fetch dropped, resource not found",
			"fetch.resource", failure.Resource(),
			"transaction.hash", failure.TransactionHash,
		)
		return
	}

	logger.Error(ctx, "fetch dropped",
		"fetch.resource", failure.Resource(),
		"transaction.hash", failure.TransactionHash,
		"error", failure.Err,
	)
}

// WithFetchConcurrency bounds the number of provider fetches in flight
// across blocks and transactions. Values below 1 are ignored.
func WithFetchConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.fetchConcurrency = int64(n)
		}
	}
}

// WithTransactionConcurrency bounds the fan-out goroutines per block.
// Values below 1 are ignored.
func WithTransactionConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.transactionConcurrency = n
		}
	}
}

// WithFetchFailureHandler replaces the default logging handler.
func WithFetchFailureHandler(f fetchFailureHandler) Option {
	return func(c *config) {
		c.fetchFailureHandler = f
	}
}

// WithObserver reports ingestion events to o.
func WithObserver(o Observer) Option {
	return func(c *config) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithSubscribeRetry sets the policy used to (re)establish the new-block
// subscription. The default retries forever with exponential backoff.
func WithSubscribeRetry(r retry.Retry) Option {
	return func(c *config) {
		if r != nil {
			c.subscribeRetry = r
		}
	}
}
