// Package netstats aggregates network telemetry for the active session.
//
// A poll loop asks the provider for its identity, height and gas price on a
// fixed interval, and the block window aggregates are recomputed on every
// tick and every window change. Each recomputation is published to the
// configured publishers.
package netstats

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/pkg/logger"
	"github.com/gabapcia/blockscope/internal/pkg/scale"
	"github.com/gabapcia/blockscope/internal/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrServiceAlreadyStarted = errors.New("service already started")

const DefaultInterval = 4 * time.Second

// Window is the subset of the block window read by the aggregator.
type Window interface {
	Blocks() []chain.Block
	Changes() <-chan struct{}
	IsCurrent(generation uint64) bool
}

type Service interface {
	// Start resets the snapshot for network and polls provider until Stop.
	Start(ctx context.Context, generation uint64, network chain.Network, provider chain.Provider) error

	// Stop halts the poll loop and waits for it to exit.
	Stop()

	// Reset replaces the snapshot with the zero telemetry of network under
	// generation, without polling. Writes of older generations are dropped.
	Reset(generation uint64, network chain.Network)

	// Snapshot returns a copy of the latest telemetry.
	Snapshot() Snapshot
}

type closeFunc func()

type service struct {
	mu        sync.Mutex
	isStarted bool
	closeFunc closeFunc

	snapshotMu sync.RWMutex
	snapshot   Snapshot

	window     Window
	interval   time.Duration
	publishers []Publisher
	tracer     trace.Tracer
}

var _ Service = (*service)(nil)

func (s *service) Start(ctx context.Context, generation uint64, network chain.Network, provider chain.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStarted {
		return ErrServiceAlreadyStarted
	}

	s.Reset(generation, network)

	ctx, cancel := context.WithCancel(ctx)
	ctx = logger.Derive(ctx, "session.generation", generation, "network", network.Label())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(ctx, generation, provider)
	}()

	s.closeFunc = func() {
		cancel()
		<-done
	}
	s.isStarted = true

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

func (s *service) Reset(generation uint64, network chain.Network) {
	s.snapshotMu.Lock()
	defer s.snapshotMu.Unlock()

	s.snapshot = Snapshot{Network: network, Generation: generation}
}

func (s *service) Snapshot() Snapshot {
	s.snapshotMu.RLock()
	defer s.snapshotMu.RUnlock()

	return s.snapshot.Clone()
}

// run polls immediately, then on every tick, and refreshes the window
// aggregates whenever the window changes.
func (s *service) run(ctx context.Context, generation uint64, provider chain.Provider) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.poll(ctx, generation, provider)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx, generation, provider)
		case <-s.window.Changes():
			s.refresh(ctx, generation)
		}
	}
}

func (s *service) poll(ctx context.Context, generation uint64, provider chain.Provider) {
	ctx, span := s.tracer.Start(ctx, "poll", trace.WithAttributes(attribute.Int64("session.generation", int64(generation))))
	defer span.End()

	if s.Snapshot().Info.IsZero() {
		info, err := provider.GetNetwork(ctx)
		if err != nil {
			s.logPollError(ctx, "network", err)
		} else {
			s.update(generation, func(snap *Snapshot) { snap.Info = info })
		}
	}

	height, err := provider.GetBlockNumber(ctx)
	if err != nil {
		s.logPollError(ctx, "block number", err)
	} else {
		s.update(generation, func(snap *Snapshot) { snap.BlockNumber = height })
	}

	price, err := provider.GetGasPrice(ctx)
	if err != nil {
		s.logPollError(ctx, "gas price", err)
	} else if price != nil {
		s.update(generation, func(snap *Snapshot) {
			snap.GasPriceWei = new(big.Int).Set(price)
			snap.GasPriceGwei = scale.WeiToGwei(price)
		})
	}

	s.refresh(ctx, generation)
}

func (s *service) logPollError(ctx context.Context, what string, err error) {
	if ctx.Err() != nil {
		return
	}

	logger.Warn(ctx, "poll failed, keeping previous value", "poll.value", what, "error", err)
}

// refresh recomputes the window aggregates and publishes the snapshot.
func (s *service) refresh(ctx context.Context, generation uint64) {
	if !s.window.IsCurrent(generation) {
		return
	}

	stats := ComputeWindowStats(s.window.Blocks())
	if !s.update(generation, func(snap *Snapshot) { snap.Window = stats }) {
		return
	}

	s.publish(ctx, s.Snapshot())
}

// update applies fn to the snapshot unless a newer session replaced it.
func (s *service) update(generation uint64, fn func(*Snapshot)) bool {
	s.snapshotMu.Lock()
	defer s.snapshotMu.Unlock()

	if s.snapshot.Generation != generation {
		return false
	}

	fn(&s.snapshot)
	s.snapshot.UpdatedAt = time.Now()

	return true
}

func (s *service) publish(ctx context.Context, snapshot Snapshot) {
	for _, p := range s.publishers {
		if err := p.Publish(ctx, snapshot); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "snapshot publish failed", "error", err)
		}
	}
}

type config struct {
	interval   time.Duration
	publishers []Publisher
}

type Option func(*config)

func New(window Window, opts ...Option) *service {
	cfg := config{
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &service{
		window:     window,
		interval:   cfg.interval,
		publishers: cfg.publishers,
		tracer:     telemetry.Tracer("netstats"),
	}
}

// WithInterval sets the poll interval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithPublishers appends snapshot publishers.
func WithPublishers(publishers ...Publisher) Option {
	return func(c *config) {
		c.publishers = append(c.publishers, publishers...)
	}
}
