// Package mocks provides testify mocks for the netsession package interfaces.
package mocks

import (
	"context"

	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/netsession"
	"github.com/gabapcia/blockscope/internal/netstats"

	"github.com/stretchr/testify/mock"
)

// Service is a mock implementation of netsession.Service.
type Service struct {
	mock.Mock
}

var _ netsession.Service = (*Service)(nil)

// NewService creates a Service mock and registers its expectations
// to be asserted when the test ends.
func NewService(t interface {
	mock.TestingT
	Cleanup(func())
}) *Service {
	m := new(Service)
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *Service) SwitchNetwork(ctx context.Context, network chain.Network) error {
	args := m.Called(ctx, network)
	return args.Error(0)
}

func (m *Service) Current() chain.Network {
	args := m.Called()
	return args.Get(0).(chain.Network)
}

func (m *Service) Status() netsession.Status {
	args := m.Called()
	return args.Get(0).(netsession.Status)
}

func (m *Service) Snapshot() netstats.Snapshot {
	args := m.Called()
	return args.Get(0).(netstats.Snapshot)
}

func (m *Service) RecentBlocks() []chain.Block {
	args := m.Called()
	blocks, _ := args.Get(0).([]chain.Block)
	return blocks
}

func (m *Service) RecentTransactions() []chain.Transaction {
	args := m.Called()
	txs, _ := args.Get(0).([]chain.Transaction)
	return txs
}

func (m *Service) KnownNetworks() []string {
	args := m.Called()
	names, _ := args.Get(0).([]string)
	return names
}

func (m *Service) Close() {
	m.Called()
}
