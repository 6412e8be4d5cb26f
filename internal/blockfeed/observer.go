package blockfeed

import (
	"context"

	"github.com/gabapcia/blockscope/internal/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Observer receives ingestion events, e.g. to feed a metrics backend.
// Implementations must be safe for concurrent use.
type Observer interface {
	ObserveBlockAdmitted()
	ObserveTransactionAdmitted()
	ObserveFetchFailure(resource string)
	ObserveStaleResult(resource string)
}

type nopObserver struct{}

func (nopObserver) ObserveBlockAdmitted()       {}
func (nopObserver) ObserveTransactionAdmitted() {}
func (nopObserver) ObserveFetchFailure(string)  {}
func (nopObserver) ObserveStaleResult(string)   {}

// instruments are the OpenTelemetry counters recorded by the pipeline.
type instruments struct {
	blocksAdmitted       metric.Int64Counter
	transactionsAdmitted metric.Int64Counter
	fetchFailures        metric.Int64Counter
	staleResults         metric.Int64Counter
}

func newInstruments() instruments {
	meter := telemetry.Meter("blockfeed")

	return instruments{
		blocksAdmitted:       counter(meter, "blockfeed.blocks.admitted", "Blocks admitted into the window"),
		transactionsAdmitted: counter(meter, "blockfeed.transactions.admitted", "Transactions admitted into the window"),
		fetchFailures:        counter(meter, "blockfeed.fetch.failures", "Provider fetches dropped after an error"),
		staleResults:         counter(meter, "blockfeed.stale.results", "Fetch results discarded for a superseded session"),
	}
}

// counter falls back to a no-op instrument so a broken meter never stops ingestion.
func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return noop.Int64Counter{}
	}

	return c
}

func (i instruments) recordFailure(ctx context.Context, resource string) {
	i.fetchFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
}

func (i instruments) recordStale(ctx context.Context, resource string) {
	i.staleResults.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
}
