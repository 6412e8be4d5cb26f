// Package ethereum implements chain.Provider for Ethereum-compatible nodes
// over JSON-RPC. New blocks are discovered by polling eth_blockNumber.
package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/pkg/transport/jsonrpc"
)

const (
	// DefaultPollInterval is how often the subscription asks for the chain height.
	DefaultPollInterval = 4 * time.Second

	// defaultMaxGap caps how many numbers a single poll may emit after a stall.
	defaultMaxGap = 16

	newBlockChannelBufferSize = defaultMaxGap
)

// client implements chain.Provider for Ethereum-based networks.
// It communicates with an Ethereum node via a JSON-RPC client.
type client struct {
	conn jsonrpc.Client

	pollInterval time.Duration
	maxGap       uint64

	mu        sync.Mutex
	listeners map[uint64]context.CancelFunc
	nextID    uint64
}

var _ chain.Provider = (*client)(nil)

// fetch calls method and maps transport failures to chain.ErrConnection and
// a null result to chain.ErrNotFound.
func (c *client) fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	data, err := c.conn.Fetch(ctx, method, params...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", chain.ErrConnection, method, err)
	}

	if len(data) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("%w: %s", chain.ErrNotFound, method)
	}

	return data, nil
}

type config struct {
	pollInterval time.Duration
	maxGap       uint64
}

// Option configures the client.
type Option func(*config)

// WithPollInterval sets how often new blocks are looked for. Non-positive
// values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithMaxGap caps the numbers emitted by one poll; older ones are skipped.
// Zero is ignored.
func WithMaxGap(n uint64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxGap = n
		}
	}
}

// NewClient creates a provider on top of the given JSON-RPC connection.
func NewClient(conn jsonrpc.Client, opts ...Option) *client {
	cfg := config{
		pollInterval: DefaultPollInterval,
		maxGap:       defaultMaxGap,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &client{
		conn:         conn,
		pollInterval: cfg.pollInterval,
		maxGap:       cfg.maxGap,
		listeners:    make(map[uint64]context.CancelFunc),
	}
}

// NewDialer returns a chain.Dialer creating clients that reach their
// endpoint through httpClient.
func NewDialer(httpClient *http.Client, opts ...Option) chain.Dialer {
	return func(_ context.Context, endpoint string) (chain.Provider, error) {
		return NewClient(jsonrpc.NewClient(httpClient, endpoint), opts...), nil
	}
}
