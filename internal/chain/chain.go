// Package chain defines the domain model shared by the ingestion and
// aggregation services: networks, blocks, transactions and the Provider
// contract through which they are fetched from a remote node.
package chain

import (
	"fmt"
	"math/big"
	"slices"
	"strings"
)

// Network identifies a target chain endpoint. It is a value type; a session
// replaces it wholesale and never mutates it in place.
type Network struct {
	Name    string // well-known name (e.g. "mainnet") or "custom"
	RPCURL  string // provider endpoint; required for custom networks
	ChainID *int64 // expected chain id, nil when unknown
}

// CustomNetworkName labels networks reached through a user supplied URL.
const CustomNetworkName = "custom"

// IsCustom reports whether the network is addressed by its RPC URL rather
// than by a well-known name.
func (n Network) IsCustom() bool {
	return n.Name == "" || strings.EqualFold(n.Name, CustomNetworkName)
}

// Label returns a human readable identifier: the name for well-known
// networks and the endpoint for custom ones.
func (n Network) Label() string {
	if n.IsCustom() {
		return n.RPCURL
	}

	return n.Name
}

// NetworkInfo is the identity reported by the provider itself.
type NetworkInfo struct {
	Name       string
	ChainID    int64
	ENSAddress string // ENS registry address, empty when the chain has none
}

// IsZero reports whether no identity has been resolved yet.
func (i NetworkInfo) IsZero() bool {
	return i == NetworkInfo{}
}

// Block is a hydrated block header plus the hashes of its transactions.
type Block struct {
	Number            uint64
	Hash              string
	ParentHash        string
	Timestamp         uint64 // unix seconds
	Miner             string
	Difficulty        uint64
	GasLimit          uint64
	GasUsed           uint64
	TransactionHashes []string
}

// Clone returns a deep copy of b.
func (b Block) Clone() Block {
	b.TransactionHashes = slices.Clone(b.TransactionHashes)
	return b
}

// TransactionCount returns the number of transactions included in the block.
func (b Block) TransactionCount() int {
	return len(b.TransactionHashes)
}

// Signature holds the ECDSA components of a signed transaction.
type Signature struct {
	V string
	R string
	S string
}

// Transaction is a transaction included in a block.
type Transaction struct {
	Hash        string
	BlockHash   string
	BlockNumber uint64
	From        string
	To          string // empty for contract creation
	Nonce       uint64
	Value       *big.Int // wei
	GasLimit    uint64
	GasPrice    *big.Int // wei
	Signature   Signature
}

// Clone returns a deep copy of tx.
func (tx Transaction) Clone() Transaction {
	tx.Value = cloneBig(tx.Value)
	tx.GasPrice = cloneBig(tx.GasPrice)
	return tx
}

// IsContractCreation reports whether the transaction has no recipient.
func (tx Transaction) IsContractCreation() bool {
	return tx.To == ""
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}

	return new(big.Int).Set(v)
}

// ShortHash abbreviates a hex hash for tabular display, keeping the prefix
// and the last four characters: "0x1234…abcd".
func ShortHash(hash string) string {
	const head, tail = 6, 4
	if len(hash) <= head+tail+1 {
		return hash
	}

	return fmt.Sprintf("%s…%s", hash[:head], hash[len(hash)-tail:])
}
