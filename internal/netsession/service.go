// Package netsession owns the active network and its provider.
//
// Switching networks tears down the running session before anything else
// happens: the new-block listener is unregistered, the poll loop stops and
// the window is reset to a new generation. Only then is a provider dialed
// for the new network and the ingestion and aggregation services restarted.
// Connectivity is probed asynchronously and reported as a ConnectionState.
package netsession

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/gabapcia/blockscope/internal/blockfeed"
	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/netstats"
	"github.com/gabapcia/blockscope/internal/pkg/logger"
	"github.com/gabapcia/blockscope/internal/pkg/resilience/retry"
	"github.com/gabapcia/blockscope/internal/pkg/validator"
)

var (
	// ErrInvalidNetwork is returned when a switch is rejected before any state changes.
	ErrInvalidNetwork = errors.New("invalid network")

	// ErrChainIDMismatch is reported when the provider serves a different chain than requested.
	ErrChainIDMismatch = errors.New("chain id mismatch")
)

const DefaultDisplayLimit = 10

// Window is the subset of the block window managed by the session.
type Window interface {
	Reset() uint64
	RecentBlocks(limit int) []chain.Block
	RecentTransactions(limit int) []chain.Transaction
}

type Service interface {
	// SwitchNetwork replaces the active session with one bound to network.
	// An invalid network is rejected with ErrInvalidNetwork and leaves the
	// running session untouched; it is the only error returned. Provider
	// failures are reported through Status. ctx bounds the lifetime of the
	// new session.
	SwitchNetwork(ctx context.Context, network chain.Network) error

	// Current returns the active network, the zero value before the first switch.
	Current() chain.Network

	// Status returns the connection state of the active session.
	Status() Status

	// Snapshot returns the latest telemetry of the active session.
	Snapshot() netstats.Snapshot

	// RecentBlocks returns the newest blocks, capped to the display limit.
	RecentBlocks() []chain.Block

	// RecentTransactions returns the newest transactions, capped to the display limit.
	RecentTransactions() []chain.Transaction

	// KnownNetworks returns the well-known network names with a managed endpoint, sorted.
	KnownNetworks() []string

	// Close stops the active session.
	Close()
}

// endpointTarget is validated before a custom network is accepted.
type endpointTarget struct {
	RPCURL string `validate:"required,rpcurl"`
}

type service struct {
	switchMu sync.Mutex

	mu         sync.RWMutex
	network    chain.Network
	generation uint64
	state      ConnectionState
	err        error
	cancel     context.CancelFunc
	probes     sync.WaitGroup

	window Window
	feed   blockfeed.Service
	stats  netstats.Service
	dial   chain.Dialer

	endpoints     map[string]string
	retry         retry.Retry
	displayLimit  int
	stateObserver stateObserver
}

var _ Service = (*service)(nil)

func (s *service) SwitchNetwork(ctx context.Context, network chain.Network) error {
	endpoint, err := s.resolveEndpoint(network)
	if err != nil {
		return err
	}

	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.teardown()
	generation := s.window.Reset()
	s.stats.Reset(generation, network)

	ctx, cancel := context.WithCancel(ctx)
	ctx = logger.Derive(ctx, "network", network.Label(), "session.generation", generation)

	s.mu.Lock()
	s.network = network
	s.generation = generation
	s.cancel = cancel
	s.mu.Unlock()
	s.setState(generation, StateLoading, nil)

	provider, err := s.dial(ctx, endpoint)
	if err != nil {
		s.fail(ctx, generation, fmt.Errorf("dial %s: %w", network.Label(), err))
		return nil
	}

	if err := s.stats.Start(ctx, generation, network, provider); err != nil {
		s.fail(ctx, generation, fmt.Errorf("start stats: %w", err))
		return nil
	}

	if err := s.feed.Start(ctx, generation, provider); err != nil {
		s.fail(ctx, generation, fmt.Errorf("start block feed: %w", err))
		return nil
	}

	s.probes.Add(1)
	go func() {
		defer s.probes.Done()
		s.probe(ctx, generation, network, provider)
	}()

	logger.Info(ctx, "network switched")
	return nil
}

// fail settles generation in the error state.
func (s *service) fail(ctx context.Context, generation uint64, err error) {
	logger.Error(ctx, "network switch failed", "error", err)
	s.setState(generation, StateError, err)
}

// resolveEndpoint routes well-known names to their managed endpoint and
// anything else to its own RPC URL, which must be valid.
func (s *service) resolveEndpoint(network chain.Network) (string, error) {
	if !network.IsCustom() {
		if endpoint, ok := s.endpoints[strings.ToLower(network.Name)]; ok {
			return endpoint, nil
		}
	}

	if err := validator.Validate(endpointTarget{RPCURL: network.RPCURL}); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidNetwork, network.Label(), err)
	}

	return network.RPCURL, nil
}

// teardown stops the services of the running session, if any.
func (s *service) teardown() {
	s.feed.Stop()
	s.stats.Stop()

	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// probe resolves the provider identity and settles the connection state,
// unless the session was superseded meanwhile.
func (s *service) probe(ctx context.Context, generation uint64, network chain.Network, provider chain.Provider) {
	var info chain.NetworkInfo
	operation := func() error {
		var err error
		info, err = provider.GetNetwork(ctx)
		return err
	}

	var err error
	if s.retry != nil {
		err = s.retry.Execute(ctx, operation)
	} else {
		err = operation()
	}

	if err == nil && network.ChainID != nil && *network.ChainID != info.ChainID {
		err = fmt.Errorf("%w: expected %d, provider reports %d", ErrChainIDMismatch, *network.ChainID, info.ChainID)
	}

	if err != nil {
		if ctx.Err() == nil {
			logger.Warn(ctx, "network probe failed", "error", err)
		}
		s.setState(generation, StateError, err)
		return
	}

	logger.Info(ctx, "network connected", "network.chain_id", info.ChainID, "network.name", info.Name)
	s.setState(generation, StateConnected, nil)
}

// setState records state for generation if it is still the active one.
func (s *service) setState(generation uint64, state ConnectionState, err error) {
	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		return
	}

	s.state = state
	s.err = err
	label := s.network.Label()
	s.mu.Unlock()

	if s.stateObserver != nil {
		s.stateObserver(label, state)
	}
}

func (s *service) Current() chain.Network {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.network
}

func (s *service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{Generation: s.generation, State: s.state, Err: s.err}
}

func (s *service) Snapshot() netstats.Snapshot {
	return s.stats.Snapshot()
}

func (s *service) RecentBlocks() []chain.Block {
	return s.window.RecentBlocks(s.displayLimit)
}

func (s *service) RecentTransactions() []chain.Transaction {
	return s.window.RecentTransactions(s.displayLimit)
}

func (s *service) Close() {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.teardown()
	s.probes.Wait()
}

func (s *service) KnownNetworks() []string {
	return slices.Sorted(maps.Keys(s.endpoints))
}

type config struct {
	endpoints     map[string]string
	retry         retry.Retry
	displayLimit  int
	stateObserver stateObserver
}

type Option func(*config)

// New creates a Service with no active session. dial builds providers for
// resolved endpoints.
func New(window Window, feed blockfeed.Service, stats netstats.Service, dial chain.Dialer, opts ...Option) *service {
	cfg := config{
		endpoints:    make(map[string]string),
		displayLimit: DefaultDisplayLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &service{
		window:        window,
		feed:          feed,
		stats:         stats,
		dial:          dial,
		endpoints:     cfg.endpoints,
		retry:         cfg.retry,
		displayLimit:  cfg.displayLimit,
		stateObserver: cfg.stateObserver,
	}
}

// WithManagedEndpoints maps well-known network names to provider endpoints.
// Names are matched case-insensitively.
func WithManagedEndpoints(endpoints map[string]string) Option {
	return func(c *config) {
		for name, endpoint := range endpoints {
			c.endpoints[strings.ToLower(name)] = endpoint
		}
	}
}

// WithRetry retries the connectivity probe with r before reporting an error.
func WithRetry(r retry.Retry) Option {
	return func(c *config) {
		c.retry = r
	}
}

// WithDisplayLimit caps the recent blocks and transactions views.
func WithDisplayLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.displayLimit = n
		}
	}
}

// WithStateObserver is called on every connection state change of the
// active session.
func WithStateObserver(f func(network string, state ConnectionState)) Option {
	return func(c *config) {
		c.stateObserver = f
	}
}
