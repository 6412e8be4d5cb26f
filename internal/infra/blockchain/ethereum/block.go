package ethereum

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/pkg/types"
)

// BlockResponse is the subset of an eth_getBlockByNumber result (hashes
// only) that the window keeps.
type BlockResponse struct {
	Number       types.Hex `json:"number"`
	Hash         string    `json:"hash"`
	ParentHash   string    `json:"parentHash"`
	Timestamp    types.Hex `json:"timestamp"`
	Miner        string    `json:"miner"`
	Difficulty   types.Hex `json:"difficulty"`
	GasLimit     types.Hex `json:"gasLimit"`
	GasUsed      types.Hex `json:"gasUsed"`
	Transactions []string  `json:"transactions"`
}

// toChainBlock converts a BlockResponse to a chain.Block.
func (b BlockResponse) toChainBlock() chain.Block {
	return chain.Block{
		Number:            b.Number.Uint64(),
		Hash:              b.Hash,
		ParentHash:        b.ParentHash,
		Timestamp:         b.Timestamp.Uint64(),
		Miner:             b.Miner,
		Difficulty:        b.Difficulty.Uint64(),
		GasLimit:          b.GasLimit.Uint64(),
		GasUsed:           b.GasUsed.Uint64(),
		TransactionHashes: b.Transactions,
	}
}

// GetBlockNumber implements chain.Provider using eth_blockNumber.
func (c *client) GetBlockNumber(ctx context.Context) (uint64, error) {
	data, err := c.fetch(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}

	var blockNumber types.Hex
	if err := json.Unmarshal(data, &blockNumber); err != nil {
		return 0, fmt.Errorf("decode block number: %w", err)
	}

	return blockNumber.Uint64(), nil
}

// GetBlock implements chain.Provider using eth_getBlockByNumber without
// transaction bodies.
func (c *client) GetBlock(ctx context.Context, number uint64) (chain.Block, error) {
	data, err := c.fetch(ctx, "eth_getBlockByNumber", types.HexFromUint64(number), false)
	if err != nil {
		return chain.Block{}, err
	}

	var blockResponse BlockResponse
	if err := json.Unmarshal(data, &blockResponse); err != nil {
		return chain.Block{}, fmt.Errorf("decode block %d: %w", number, err)
	}

	return blockResponse.toChainBlock(), nil
}
