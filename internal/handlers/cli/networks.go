package cli

import (
	"context"
	"fmt"

	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/netsession"

	"github.com/urfave/cli/v3"
)

// networksCommand lists the well-known networks followed by the custom entry.
//
// Usage example:
//
//	blockscope networks
func networksCommand(session netsession.Service) *cli.Command {
	return &cli.Command{
		Name:        "networks",
		Description: "List the networks that can be selected by name.",
		Usage:       "Prints every network with a managed endpoint. Any other network is reached with a custom RPC URL.",
		Action: func(ctx context.Context, c *cli.Command) error {
			w := c.Root().Writer
			for _, name := range session.KnownNetworks() {
				fmt.Fprintln(w, name)
			}

			fmt.Fprintf(w, "%s (requires --rpc-url)\n", chain.CustomNetworkName)
			return nil
		},
	}
}
