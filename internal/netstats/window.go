package netstats

import "github.com/gabapcia/blockscope/internal/chain"

// WindowStats are the aggregates derived from the block window.
type WindowStats struct {
	Size          int     // blocks in the window
	Span          uint64  // seconds between the oldest and newest block
	AvgDifficulty float64 // sum(difficulty) / size
	HashRate      float64 // sum(difficulty) / span
	TxRate        float64 // sum(transaction count) / span
}

// ComputeWindowStats aggregates blocks, which must be sorted ascending by
// number. With fewer than two blocks, or when every block shares one
// timestamp, the aggregates are zero.
func ComputeWindowStats(blocks []chain.Block) WindowStats {
	stats := WindowStats{Size: len(blocks)}
	if len(blocks) < 2 {
		return stats
	}

	oldest, newest := blocks[0], blocks[len(blocks)-1]
	if newest.Timestamp <= oldest.Timestamp {
		return stats
	}
	stats.Span = newest.Timestamp - oldest.Timestamp

	var difficulty, transactions float64
	for _, b := range blocks {
		difficulty += float64(b.Difficulty)
		transactions += float64(b.TransactionCount())
	}

	span := float64(stats.Span)
	stats.AvgDifficulty = difficulty / float64(len(blocks))
	stats.HashRate = difficulty / span
	stats.TxRate = transactions / span

	return stats
}
