// Package blockwindow implements the sliding window of recent blocks and
// transactions observed on the active network.
//
// Blocks are kept sorted ascending by number, deduplicated by number and
// bounded by a capacity; once full, the block with the smallest number is
// evicted. Transactions are kept in arrival order and evicted FIFO.
//
// Every write can be tagged with the session generation it was issued
// under. Reset advances the generation so late completions from a previous
// session are rejected instead of mixing networks in one window.
package blockwindow

import (
	"slices"
	"sort"
	"sync"

	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/pkg/x/chflow"
)

const (
	DefaultBlockCapacity       = 100
	DefaultTransactionCapacity = 1000
)

// EvictionHandler is notified of every block that leaves the window because
// of capacity. It is never called while the store lock is held.
type EvictionHandler func(block chain.Block)

// Store is the bounded, generation-tagged window shared by the ingestion
// pipeline and the metrics aggregator. It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	blockCapacity       int
	transactionCapacity int

	blocks       []chain.Block // ascending by Number
	members      map[uint64]struct{}
	transactions []chain.Transaction

	generation uint64
	version    uint64

	changes chan struct{}
	onEvict EvictionHandler
}

type config struct {
	blockCapacity       int
	transactionCapacity int
	onEvict             EvictionHandler
}

// Option configures a Store.
type Option func(*config)

// WithBlockCapacity sets the maximum number of blocks retained. Values
// below 1 are ignored.
func WithBlockCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.blockCapacity = n
		}
	}
}

// WithTransactionCapacity sets the maximum number of transactions retained.
// Values below 1 are ignored.
func WithTransactionCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.transactionCapacity = n
		}
	}
}

// WithEvictionHandler registers f to be called for each evicted block.
func WithEvictionHandler(f EvictionHandler) Option {
	return func(c *config) {
		c.onEvict = f
	}
}

// New creates an empty Store at generation 0.
func New(opts ...Option) *Store {
	cfg := config{
		blockCapacity:       DefaultBlockCapacity,
		transactionCapacity: DefaultTransactionCapacity,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Store{
		blockCapacity:       cfg.blockCapacity,
		transactionCapacity: cfg.transactionCapacity,
		members:             make(map[uint64]struct{}, cfg.blockCapacity),
		changes:             make(chan struct{}, 1),
		onEvict:             cfg.onEvict,
	}
}

// AdmitBlock inserts block under the current generation. See AdmitBlockAt.
func (s *Store) AdmitBlock(block chain.Block) bool {
	return s.admitBlock(nil, block)
}

// AdmitBlockAt inserts block if generation is still current and no block
// with the same number is present. The window stays sorted ascending and,
// when it grows past capacity, the smallest numbers are evicted. It reports
// whether the block was admitted; an admitted block may be evicted right
// away if it is older than everything retained in a full window.
func (s *Store) AdmitBlockAt(generation uint64, block chain.Block) bool {
	return s.admitBlock(&generation, block)
}

func (s *Store) admitBlock(generation *uint64, block chain.Block) bool {
	s.mu.Lock()

	if generation != nil && *generation != s.generation {
		s.mu.Unlock()
		return false
	}

	if _, ok := s.members[block.Number]; ok {
		s.mu.Unlock()
		return false
	}

	i := sort.Search(len(s.blocks), func(i int) bool { return s.blocks[i].Number > block.Number })
	s.blocks = slices.Insert(s.blocks, i, block.Clone())
	s.members[block.Number] = struct{}{}

	var evicted []chain.Block
	if excess := len(s.blocks) - s.blockCapacity; excess > 0 {
		evicted = slices.Clone(s.blocks[:excess])
		for _, b := range evicted {
			delete(s.members, b.Number)
		}
		s.blocks = slices.Delete(s.blocks, 0, excess)
	}

	s.version++
	s.mu.Unlock()

	s.notify()
	s.evict(evicted)

	return true
}

// AdmitTransaction appends tx under the current generation. See AdmitTransactionAt.
func (s *Store) AdmitTransaction(tx chain.Transaction) {
	s.admitTransaction(nil, tx)
}

// AdmitTransactionAt appends tx to the tail if generation is still current,
// dropping from the head once the window is past capacity. Transactions are
// not deduplicated. It reports whether tx was written.
func (s *Store) AdmitTransactionAt(generation uint64, tx chain.Transaction) bool {
	return s.admitTransaction(&generation, tx)
}

func (s *Store) admitTransaction(generation *uint64, tx chain.Transaction) bool {
	s.mu.Lock()

	if generation != nil && *generation != s.generation {
		s.mu.Unlock()
		return false
	}

	s.transactions = append(s.transactions, tx.Clone())
	if excess := len(s.transactions) - s.transactionCapacity; excess > 0 {
		clear(s.transactions[:excess])
		s.transactions = s.transactions[excess:]
	}

	s.version++
	s.mu.Unlock()

	s.notify()
	return true
}

// Clear empties both windows without touching the generation.
func (s *Store) Clear() {
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()

	s.notify()
}

// Reset empties both windows and advances the generation, returning the new
// one. Writes tagged with any earlier generation are rejected afterwards.
func (s *Store) Reset() uint64 {
	s.mu.Lock()
	s.clearLocked()
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	s.notify()
	return generation
}

func (s *Store) clearLocked() {
	s.blocks = nil
	s.transactions = nil
	clear(s.members)
	s.version++
}

// Snapshot returns deep copies of both windows: blocks ascending by number
// and transactions in arrival order.
func (s *Store) Snapshot() ([]chain.Block, []chain.Transaction) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocks := make([]chain.Block, len(s.blocks))
	for i, b := range s.blocks {
		blocks[i] = b.Clone()
	}

	transactions := make([]chain.Transaction, len(s.transactions))
	for i, tx := range s.transactions {
		transactions[i] = tx.Clone()
	}

	return blocks, transactions
}

// Blocks returns a deep copy of the block window, ascending by number.
func (s *Store) Blocks() []chain.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chain.Block, len(s.blocks))
	for i, b := range s.blocks {
		out[i] = b.Clone()
	}

	return out
}

// RecentBlocks returns up to limit blocks, highest number first. A negative
// limit returns the whole window.
func (s *Store) RecentBlocks(limit int) []chain.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.blocks)
	if limit >= 0 && limit < n {
		n = limit
	}

	out := make([]chain.Block, 0, n)
	for i := len(s.blocks) - 1; i >= len(s.blocks)-n; i-- {
		out = append(out, s.blocks[i].Clone())
	}

	return out
}

// RecentTransactions returns up to limit transactions, most recently
// admitted first. A negative limit returns the whole window.
func (s *Store) RecentTransactions(limit int) []chain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.transactions)
	if limit >= 0 && limit < n {
		n = limit
	}

	out := make([]chain.Transaction, 0, n)
	for i := len(s.transactions) - 1; i >= len(s.transactions)-n; i-- {
		out = append(out, s.transactions[i].Clone())
	}

	return out
}

// Contains reports whether a block with number is in the window.
func (s *Store) Contains(number uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.members[number]
	return ok
}

// Retains reports whether a block with number would stay in the window if
// admitted now: the window has room, or number is above its smallest entry.
func (s *Store) Retains(number uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.blocks) == 0 || len(s.blocks) < s.blockCapacity {
		return true
	}
	return number > s.blocks[0].Number
}

// Len returns the number of blocks and transactions held.
func (s *Store) Len() (blocks, transactions int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.blocks), len(s.transactions)
}

// Generation returns the current session generation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.generation
}

// IsCurrent reports whether generation is still the active one.
func (s *Store) IsCurrent(generation uint64) bool {
	return s.Generation() == generation
}

// Version returns a counter incremented on every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.version
}

// Changes returns a channel that receives a signal after mutations. Bursts
// of writes collapse into a single pending signal, so readers observe the
// latest state rather than every step.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	chflow.TrySend(s.changes, struct{}{})
}

func (s *Store) evict(blocks []chain.Block) {
	if s.onEvict == nil {
		return
	}

	for _, b := range blocks {
		s.onEvict(b)
	}
}
