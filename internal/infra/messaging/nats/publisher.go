// Package nats publishes telemetry snapshots on NATS subjects, one subject
// per network: "<prefix>.<network>".
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gabapcia/blockscope/internal/chain"
	"github.com/gabapcia/blockscope/internal/netstats"
	"github.com/gabapcia/blockscope/internal/pkg/logger"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to the network token of every subject.
const DefaultSubjectPrefix = "blockscope.snapshots"

// conn is the subset of *nats.Conn used by the publisher.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type publisher struct {
	conn          conn
	subjectPrefix string
}

var _ netstats.Publisher = (*publisher)(nil)

// subject builds the subject for a network. Custom networks are addressed
// by URL, which is not a valid subject token, so they share "custom".
func (p *publisher) subject(network chain.Network) string {
	token := chain.CustomNetworkName
	if !network.IsCustom() {
		token = strings.ToLower(network.Name)
	}

	return p.subjectPrefix + "." + token
}

// Publish sends the snapshot as JSON. Delivery is fire-and-forget; ctx is
// accepted for interface compatibility and checked before sending.
func (p *publisher) Publish(ctx context.Context, snapshot netstats.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(snapshot.Message())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	subject := p.subject(snapshot.Network)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish snapshot to %s: %w", subject, err)
	}

	return nil
}

// Close drains pending messages and closes the connection.
func (p *publisher) Close() error {
	return p.conn.Drain()
}

type config struct {
	name          string
	subjectPrefix string
	timeout       time.Duration
}

type Option func(*config)

// WithSubjectPrefix overrides DefaultSubjectPrefix.
func WithSubjectPrefix(prefix string) Option {
	return func(c *config) {
		if prefix != "" {
			c.subjectPrefix = strings.TrimSuffix(prefix, ".")
		}
	}
}

// WithConnectionName sets the client name reported to the server.
func WithConnectionName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// NewPublisher connects to url and returns a snapshot publisher.
func NewPublisher(ctx context.Context, url string, opts ...Option) (*publisher, error) {
	cfg := config{
		name:          "blockscope",
		subjectPrefix: DefaultSubjectPrefix,
		timeout:       10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	nc, err := nats.Connect(url,
		nats.Name(cfg.name),
		nats.Timeout(cfg.timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(ctx, "nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info(ctx, "nats reconnected", "nats.url", nc.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &publisher{
		conn:          nc,
		subjectPrefix: cfg.subjectPrefix,
	}, nil
}
