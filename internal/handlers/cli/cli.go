package cli

import (
	"context"
	"os"

	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/netsession"

	"github.com/urfave/cli/v3"
)

// Run initializes and executes the blockscope CLI application.
//
// It registers all available commands, including:
//
//   - `watch`: Follows a network and prints its telemetry periodically.
//   - `networks`: Lists the networks that can be selected by name.
//
// Parameters:
//   - ctx: Context used to control the lifecycle of the CLI application.
//   - session: The netsession service driving the active network.
//   - initial: The network selected when no flag overrides it.
func Run(ctx context.Context, session netsession.Service, initial chain.Network) error {
	return newApp(session, initial).Run(ctx, os.Args)
}

func newApp(session netsession.Service, initial chain.Network) *cli.Command {
	return &cli.Command{
		EnableShellCompletion: true,
		Name:                  "blockscope",
		Description:           "Streams blocks and transactions from an EVM network and aggregates live network statistics.",
		Usage:                 "blockscope [command] [flags]",
		Commands: []*cli.Command{
			watchCommand(session, initial),
			networksCommand(session),
		},
	}
}
