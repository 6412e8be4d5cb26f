package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/netsession"
	"github.com/gabapcia/blockscope/internal/pkg/logger"

	"github.com/urfave/cli/v3"
)

// ErrInvalidInput is returned for network lines that cannot be parsed.
var ErrInvalidInput = errors.New("invalid input")

const defaultRefresh = 4 * time.Second

// watchCommand returns a CLI command that switches to a network and prints
// its telemetry until interrupted.
//
// While running, a line typed on stdin switches the network:
//
//	sepolia
//	custom http://localhost:8545 1337
//	http://localhost:8545
//
// Usage example:
//
//	blockscope watch --network mainnet --refresh 2s
func watchCommand(session netsession.Service, initial chain.Network) *cli.Command {
	var chainID int64
	if initial.ChainID != nil {
		chainID = *initial.ChainID
	}

	return &cli.Command{
		Name:        "watch",
		Description: "Follow a network and print its telemetry, recent blocks and transactions.",
		Usage:       "Runs until Ctrl+C or a termination signal. Type a network name or RPC URL to switch networks.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "network",
				Usage: "Network name (see `networks`) or custom",
				Value: initial.Name,
			},
			&cli.StringFlag{
				Name:  "rpc-url",
				Usage: "Provider URL of a custom network",
				Value: initial.RPCURL,
			},
			&cli.Int64Flag{
				Name:  "chain-id",
				Usage: "Expected chain id; 0 accepts any",
				Value: chainID,
			},
			&cli.DurationFlag{
				Name:  "refresh",
				Usage: "Interval between two reports",
				Value: defaultRefresh,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			network := chain.Network{Name: c.String("network"), RPCURL: c.String("rpc-url")}
			if id := c.Int64("chain-id"); id > 0 {
				network.ChainID = &id
			}

			if err := session.SwitchNetwork(ctx, network); err != nil {
				return err
			}

			refresh := c.Duration("refresh")
			if refresh <= 0 {
				refresh = defaultRefresh
			}

			w := c.Root().Writer
			lines := readLines(ctx, c.Root().Reader)

			ticker := time.NewTicker(refresh)
			defer ticker.Stop()

			printReport(w, session)
			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						lines = nil
						continue
					}
					switchFromLine(ctx, w, session, line)
				case <-ticker.C:
					printReport(w, session)
				}
			}
		},
	}
}

// switchFromLine switches the session to the network described by line.
// Errors are reported to w and keep the command running.
func switchFromLine(ctx context.Context, w io.Writer, session netsession.Service, line string) {
	network, err := parseNetworkLine(line)
	if errors.Is(err, errEmptyLine) {
		return
	}
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}

	if err := session.SwitchNetwork(ctx, network); err != nil {
		logger.Warn(ctx, "network switch failed", "network", network.Label(), "error", err)
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}

	printReport(w, session)
}

var errEmptyLine = errors.New("empty line")

// parseNetworkLine accepts a network name, a bare RPC URL, or
// "custom <url> [chain id]".
func parseNetworkLine(line string) (chain.Network, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return chain.Network{}, errEmptyLine
	}

	if strings.Contains(fields[0], "://") {
		fields = append([]string{chain.CustomNetworkName}, fields...)
	}

	if !strings.EqualFold(fields[0], chain.CustomNetworkName) {
		if len(fields) > 1 {
			return chain.Network{}, fmt.Errorf("%w: unexpected arguments after %q", ErrInvalidInput, fields[0])
		}
		return chain.Network{Name: fields[0]}, nil
	}

	network := chain.Network{Name: chain.CustomNetworkName}
	switch len(fields) {
	case 3:
		id, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil || id <= 0 {
			return chain.Network{}, fmt.Errorf("%w: chain id %q", ErrInvalidInput, fields[2])
		}
		network.ChainID = &id
		fallthrough
	case 2:
		network.RPCURL = fields[1]
	case 1:
		return chain.Network{}, fmt.Errorf("%w: custom network requires an RPC URL", ErrInvalidInput)
	default:
		return chain.Network{}, fmt.Errorf("%w: too many arguments", ErrInvalidInput)
	}

	return network, nil
}

// readLines forwards the lines of r until it is exhausted or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	if r == nil {
		close(lines)
		return lines
	}

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	return lines
}
