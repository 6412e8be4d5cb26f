package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/pkg/types"
)

// ensRegistry is deployed at the same address on every chain that has ENS.
const ensRegistry = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"

type knownChain struct {
	name string
	ens  bool
}

var knownChains = map[int64]knownChain{
	1:        {name: "mainnet", ens: true},
	3:        {name: "ropsten", ens: true},
	4:        {name: "rinkeby", ens: true},
	5:        {name: "goerli", ens: true},
	42:       {name: "kovan"},
	17000:    {name: "holesky", ens: true},
	11155111: {name: "sepolia", ens: true},
}

// networkInfo resolves the name and ENS registry for chainID.
func networkInfo(chainID int64) chain.NetworkInfo {
	known, ok := knownChains[chainID]
	if !ok {
		return chain.NetworkInfo{Name: "unknown", ChainID: chainID}
	}

	info := chain.NetworkInfo{Name: known.name, ChainID: chainID}
	if known.ens {
		info.ENSAddress = ensRegistry
	}

	return info
}

// GetNetwork implements chain.Provider using eth_chainId.
func (c *client) GetNetwork(ctx context.Context) (chain.NetworkInfo, error) {
	data, err := c.fetch(ctx, "eth_chainId")
	if err != nil {
		return chain.NetworkInfo{}, err
	}

	var chainID types.Hex
	if err := json.Unmarshal(data, &chainID); err != nil {
		return chain.NetworkInfo{}, fmt.Errorf("decode chain id: %w", err)
	}

	return networkInfo(int64(chainID.Uint64())), nil
}

// GetGasPrice implements chain.Provider using eth_gasPrice.
func (c *client) GetGasPrice(ctx context.Context) (*big.Int, error) {
	data, err := c.fetch(ctx, "eth_gasPrice")
	if err != nil {
		return nil, err
	}

	var gasPrice types.Hex
	if err := json.Unmarshal(data, &gasPrice); err != nil {
		return nil, fmt.Errorf("decode gas price: %w", err)
	}

	return gasPrice.Big(), nil
}
