package blockfeed

const (
	resourceBlock       = "block"
	resourceTransaction = "transaction"
)

// FetchFailure describes a dropped provider fetch.
type FetchFailure struct {
	Generation      uint64
	BlockNumber     uint64
	TransactionHash string // empty when the block fetch itself failed
	Err             error
}

// Resource returns "block" or "transaction".
func (f FetchFailure) Resource() string {
	if f.TransactionHash != "" {
		return resourceTransaction
	}

	return resourceBlock
}
