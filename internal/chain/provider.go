package chain

import (
	"context"
	"errors"
	"math/big"
)

var (
	// ErrNotFound is returned when the provider cannot resolve a block number or transaction hash.
	ErrNotFound = errors.New("not found")

	// ErrConnection wraps transport and RPC failures. They are transient and never fatal.
	ErrConnection = errors.New("connection error")
)

// Provider is the remote chain-access capability consumed by the core.
// Implementations must be safe for concurrent use.
type Provider interface {
	// GetNetwork returns the identity of the chain the provider is bound to.
	GetNetwork(ctx context.Context) (NetworkInfo, error)

	// GetBlockNumber returns the current chain height.
	GetBlockNumber(ctx context.Context) (uint64, error)

	// GetGasPrice returns the current gas price in wei.
	GetGasPrice(ctx context.Context) (*big.Int, error)

	// GetBlock fetches the block with the given number. It returns an error
	// wrapping ErrNotFound when the provider does not know the block.
	GetBlock(ctx context.Context, number uint64) (Block, error)

	// GetTransaction fetches a transaction by hash. It returns an error
	// wrapping ErrNotFound when the provider does not know the transaction.
	GetTransaction(ctx context.Context, hash string) (Transaction, error)

	// SubscribeNewBlocks streams the numbers of newly mined blocks. The
	// channel is closed when ctx is canceled or RemoveAllListeners is called.
	SubscribeNewBlocks(ctx context.Context) (<-chan uint64, error)

	// RemoveAllListeners tears down every active subscription.
	RemoveAllListeners()
}

// Dialer builds a Provider bound to an endpoint.
type Dialer func(ctx context.Context, endpoint string) (Provider, error)
