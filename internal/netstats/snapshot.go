package netstats

import (
	"context"
	"math/big"
	"time"

	"github.com/gabapcia/blockscope/internal/chain"
)

// Snapshot is the telemetry view of the active session: point values polled
// from the provider plus aggregates over the block window.
type Snapshot struct {
	Network      chain.Network
	Info         chain.NetworkInfo // zero until the provider identity is known
	Generation   uint64
	BlockNumber  uint64
	GasPriceWei  *big.Int
	GasPriceGwei float64
	Window       WindowStats
	UpdatedAt    time.Time
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	if s.GasPriceWei != nil {
		s.GasPriceWei = new(big.Int).Set(s.GasPriceWei)
	}

	return s
}

// Publisher forwards snapshots to an external sink.
type Publisher interface {
	Publish(ctx context.Context, snapshot Snapshot) error
}
