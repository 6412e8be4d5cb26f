// Package prometheus exposes telemetry snapshots and ingestion counters as
// Prometheus collectors.
package prometheus

import (
	"context"
	"sync"

	"github.com/gabapcia/blockscope/internal/blockfeed"
	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/netsession"
	"github.com/gabapcia/blockscope/internal/netstats"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "blockscope"

var connectionStates = []netsession.ConnectionState{
	netsession.StateLoading,
	netsession.StateConnected,
	netsession.StateError,
}

// Metrics holds all Prometheus collectors. It is a netstats.Publisher and a
// blockfeed.Observer, and it tracks connection state changes.
type Metrics struct {
	// Snapshot gauges, labelled by network
	blockNumber   *prometheus.GaugeVec
	gasPriceGwei  *prometheus.GaugeVec
	avgDifficulty *prometheus.GaugeVec
	hashRate      *prometheus.GaugeVec
	txRate        *prometheus.GaugeVec
	windowSize    *prometheus.GaugeVec

	connectionState *prometheus.GaugeVec

	// Ingestion counters
	blocksAdmitted       prometheus.Counter
	blocksEvicted        prometheus.Counter
	transactionsAdmitted prometheus.Counter
	fetchFailures        *prometheus.CounterVec
	staleResults         *prometheus.CounterVec

	mu         sync.Mutex
	generation uint64
}

var (
	_ netstats.Publisher = (*Metrics)(nil)
	_ blockfeed.Observer = (*Metrics)(nil)
)

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}

	return &Metrics{
		blockNumber:   gauge("block_number", "Latest chain height reported by the provider", "network"),
		gasPriceGwei:  gauge("gas_price_gwei", "Current gas price in gwei", "network"),
		avgDifficulty: gauge("window_avg_difficulty", "Average difficulty over the block window", "network"),
		hashRate:      gauge("window_hash_rate", "Difficulty per second over the block window", "network"),
		txRate:        gauge("window_tx_rate", "Transactions per second over the block window", "network"),
		windowSize:    gauge("window_blocks", "Blocks currently held in the window", "network"),

		connectionState: gauge("connection_state", "1 for the current connection state of the active network", "network", "state"),

		blocksAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_admitted_total",
			Help:      "Total number of blocks admitted into the window",
		}),
		blocksEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_evicted_total",
			Help:      "Total number of blocks evicted from the window",
		}),
		transactionsAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_admitted_total",
			Help:      "Total number of transactions admitted into the window",
		}),
		fetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Total number of provider fetches dropped after an error",
		}, []string{"resource"}),
		staleResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_total",
			Help:      "Total number of fetch results discarded for a superseded session",
		}, []string{"resource"}),
	}
}

// Publish implements netstats.Publisher. Gauges of a previous session are
// dropped the first time a snapshot of a newer one arrives.
func (m *Metrics) Publish(_ context.Context, snapshot netstats.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if snapshot.Generation < m.generation {
		return nil
	}

	if snapshot.Generation > m.generation {
		for _, vec := range []*prometheus.GaugeVec{m.blockNumber, m.gasPriceGwei, m.avgDifficulty, m.hashRate, m.txRate, m.windowSize} {
			vec.Reset()
		}
		m.generation = snapshot.Generation
	}

	network := snapshot.Network.Label()
	m.blockNumber.WithLabelValues(network).Set(float64(snapshot.BlockNumber))
	m.gasPriceGwei.WithLabelValues(network).Set(snapshot.GasPriceGwei)
	m.avgDifficulty.WithLabelValues(network).Set(snapshot.Window.AvgDifficulty)
	m.hashRate.WithLabelValues(network).Set(snapshot.Window.HashRate)
	m.txRate.WithLabelValues(network).Set(snapshot.Window.TxRate)
	m.windowSize.WithLabelValues(network).Set(float64(snapshot.Window.Size))

	return nil
}

// ObserveConnectionState records state as the only active state of network.
func (m *Metrics) ObserveConnectionState(network string, state netsession.ConnectionState) {
	m.connectionState.Reset()
	for _, s := range connectionStates {
		value := 0.0
		if s == state {
			value = 1
		}
		m.connectionState.WithLabelValues(network, s.String()).Set(value)
	}
}

// ObserveBlockEvicted counts a block leaving the window.
func (m *Metrics) ObserveBlockEvicted(chain.Block) {
	m.blocksEvicted.Inc()
}

func (m *Metrics) ObserveBlockAdmitted() {
	m.blocksAdmitted.Inc()
}

func (m *Metrics) ObserveTransactionAdmitted() {
	m.transactionsAdmitted.Inc()
}

func (m *Metrics) ObserveFetchFailure(resource string) {
	m.fetchFailures.WithLabelValues(resource).Inc()
}

func (m *Metrics) ObserveStaleResult(resource string) {
	m.staleResults.WithLabelValues(resource).Inc()
}
