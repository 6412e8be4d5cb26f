package ethereum

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/pkg/types"
)

// TransactionResponse represents a raw transaction object returned by the Ethereum JSON-RPC API.
type TransactionResponse struct {
	Hash        string    `json:"hash"`
	BlockHash   string    `json:"blockHash"`
	BlockNumber types.Hex `json:"blockNumber"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Nonce       types.Hex `json:"nonce"`
	Value       types.Hex `json:"value"`
	Gas         types.Hex `json:"gas"`
	GasPrice    types.Hex `json:"gasPrice"`
	V           string    `json:"v"`
	R           string    `json:"r"`
	S           string    `json:"s"`
}

// toChainTransaction converts a TransactionResponse to a chain.Transaction.
func (t TransactionResponse) toChainTransaction() chain.Transaction {
	return chain.Transaction{
		Hash:        t.Hash,
		BlockHash:   t.BlockHash,
		BlockNumber: t.BlockNumber.Uint64(),
		From:        t.From,
		To:          t.To,
		Nonce:       t.Nonce.Uint64(),
		Value:       t.Value.Big(),
		GasLimit:    t.Gas.Uint64(),
		GasPrice:    t.GasPrice.Big(),
		Signature: chain.Signature{
			V: t.V,
			R: t.R,
			S: t.S,
		},
	}
}

// GetTransaction implements chain.Provider using eth_getTransactionByHash.
func (c *client) GetTransaction(ctx context.Context, hash string) (chain.Transaction, error) {
	data, err := c.fetch(ctx, "eth_getTransactionByHash", hash)
	if err != nil {
		return chain.Transaction{}, err
	}

	var txResponse TransactionResponse
	if err := json.Unmarshal(data, &txResponse); err != nil {
		return chain.Transaction{}, fmt.Errorf("decode transaction %s: %w", hash, err)
	}

	return txResponse.toChainTransaction(), nil
}
