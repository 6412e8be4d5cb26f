// Package mocks provides testify mocks for the jsonrpc package interfaces.
package mocks

import (
	"context"
	"encoding/json"

	"github.com/gabapcia/blockscope/internal/pkg/transport/jsonrpc"

	"github.com/stretchr/testify/mock"
)

// Client is a mock implementation of jsonrpc.Client.
type Client struct {
	mock.Mock
}

var _ jsonrpc.Client = (*Client)(nil)

// Fetch records the call; params are passed to the mock as a single
// []any argument so expectations can match them as a whole.
func (m *Client) Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	args := m.Called(ctx, method, params)

	if fn, ok := args.Get(0).(func(context.Context, string, ...any) (json.RawMessage, error)); ok {
		return fn(ctx, method, params...)
	}

	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}
