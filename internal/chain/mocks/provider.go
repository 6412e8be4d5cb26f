// Package mocks provides testify mocks for the chain package interfaces.
package mocks

import (
	"context"
	"math/big"

	"github.com/gabapcia/blockscope/internal/chain"

	"github.com/stretchr/testify/mock"
)

// Provider is a mock implementation of chain.Provider.
type Provider struct {
	mock.Mock
}

var _ chain.Provider = (*Provider)(nil)

// NewProvider creates a Provider mock and registers its expectations
// to be asserted when the test ends.
func NewProvider(t interface {
	mock.TestingT
	Cleanup(func())
}) *Provider {
	m := new(Provider)
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *Provider) GetNetwork(ctx context.Context) (chain.NetworkInfo, error) {
	args := m.Called(ctx)

	if fn, ok := args.Get(0).(func(context.Context) (chain.NetworkInfo, error)); ok {
		return fn(ctx)
	}

	return args.Get(0).(chain.NetworkInfo), args.Error(1)
}

func (m *Provider) GetBlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)

	if fn, ok := args.Get(0).(func(context.Context) (uint64, error)); ok {
		return fn(ctx)
	}

	return args.Get(0).(uint64), args.Error(1)
}

func (m *Provider) GetGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)

	if fn, ok := args.Get(0).(func(context.Context) (*big.Int, error)); ok {
		return fn(ctx)
	}

	price, _ := args.Get(0).(*big.Int)
	return price, args.Error(1)
}

func (m *Provider) GetBlock(ctx context.Context, number uint64) (chain.Block, error) {
	args := m.Called(ctx, number)

	if fn, ok := args.Get(0).(func(context.Context, uint64) (chain.Block, error)); ok {
		return fn(ctx, number)
	}

	return args.Get(0).(chain.Block), args.Error(1)
}

func (m *Provider) GetTransaction(ctx context.Context, hash string) (chain.Transaction, error) {
	args := m.Called(ctx, hash)

	if fn, ok := args.Get(0).(func(context.Context, string) (chain.Transaction, error)); ok {
		return fn(ctx, hash)
	}

	return args.Get(0).(chain.Transaction), args.Error(1)
}

func (m *Provider) SubscribeNewBlocks(ctx context.Context) (<-chan uint64, error) {
	args := m.Called(ctx)

	if fn, ok := args.Get(0).(func(context.Context) (<-chan uint64, error)); ok {
		return fn(ctx)
	}

	ch, _ := args.Get(0).(<-chan uint64)
	return ch, args.Error(1)
}

func (m *Provider) RemoveAllListeners() {
	m.Called()
}
