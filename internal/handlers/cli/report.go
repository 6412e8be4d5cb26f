package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/netsession"
	"github.com/gabapcia/blockscope/internal/netstats"
	"github.com/gabapcia/blockscope/internal/pkg/scale"
)

// printReport writes the status, telemetry and recent activity of session to w.
func printReport(w io.Writer, session netsession.Service) {
	writeReport(w, session.Current(), session.Status(), session.Snapshot(), session.RecentBlocks(), session.RecentTransactions())
}

func writeReport(w io.Writer, network chain.Network, status netsession.Status, snapshot netstats.Snapshot, blocks []chain.Block, txs []chain.Transaction) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "network\t%s\tstate\t%s\n", network.Label(), status.State)
	if status.Err != nil {
		fmt.Fprintf(tw, "error\t%v\n", status.Err)
	}
	if !snapshot.Info.IsZero() {
		fmt.Fprintf(tw, "chain\t%s\tchain id\t%d\n", snapshot.Info.Name, snapshot.Info.ChainID)
	}

	stats := snapshot.Window
	fmt.Fprintf(tw, "block\t#%d\tgas price\t%s gwei\n", snapshot.BlockNumber, scale.Scale(snapshot.GasPriceGwei))
	fmt.Fprintf(tw, "window\t%d blocks over %ds\tdifficulty\t%s\n", stats.Size, stats.Span, scale.Scale(stats.AvgDifficulty))
	fmt.Fprintf(tw, "hash rate\t%sH/s\ttx rate\t%s tx/s\n", withPrefix(scale.Scale(stats.HashRate)), scale.Scale(stats.TxRate))

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "BLOCK\tHASH\tTXS\tMINER")
	for _, b := range blocks {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", b.Number, chain.ShortHash(b.Hash), b.TransactionCount(), chain.ShortHash(b.Miner))
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "TRANSACTION\tFROM\tTO\tVALUE")
	for _, tx := range txs {
		to := chain.ShortHash(tx.To)
		if tx.IsContractCreation() {
			to = "(create)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s gwei\n", chain.ShortHash(tx.Hash), chain.ShortHash(tx.From), to, scale.Scale(scale.WeiToGwei(tx.Value)))
	}
}

// withPrefix renders s so that a unit can be appended to its prefix: "1.5 M" then "H/s".
func withPrefix(s scale.Scaled) string {
	if s.Prefix == "" {
		return s.String() + " "
	}

	return s.String()
}
