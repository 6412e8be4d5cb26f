package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gabapcia/blockscope/internal/netstats"

	"github.com/redis/go-redis/v9"
)

// snapshotKeyPrefix is the namespace prefix for all keys written by the snapshot publisher.
const snapshotKeyPrefix = "netstats"

// SnapshotChannel is the pub/sub channel every snapshot update is published to.
const SnapshotChannel = snapshotKeyPrefix + ":snapshots"

var _ netstats.Publisher = (*client)(nil)

// snapshotKey constructs the key holding the latest snapshot of a network:
//
//	"netstats:snapshot:<network>"
func snapshotKey(network string) string {
	return fmt.Sprintf("%s:snapshot:%s", snapshotKeyPrefix, network)
}

// Publish stores the snapshot under its network key and announces it on
// SnapshotChannel in a single transaction.
func (c *client) Publish(ctx context.Context, snapshot netstats.Snapshot) error {
	msg := snapshot.Message()

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = c.conn.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, snapshotKey(msg.Network), payload, c.snapshotTTL)
		pipe.Publish(ctx, SnapshotChannel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish snapshot to redis: %w", err)
	}

	return nil
}
