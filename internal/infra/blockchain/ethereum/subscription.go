package ethereum

import (
	"context"
	"time"

	"github.com/gabapcia/blockscope/internal/pkg/logger"
	"github.com/gabapcia/blockscope/internal/pkg/x/chflow"
)

// SubscribeNewBlocks implements chain.Provider. It never fails: the
// current height is emitted as soon as it is known, and afterwards every
// poll emits the numbers mined since the previous one, at most maxGap of
// them. Polling errors, including on the first height, are logged and
// retried on the next tick.
func (c *client) SubscribeNewBlocks(ctx context.Context) (<-chan uint64, error) {
	ctx, cancel := context.WithCancel(ctx)
	id := c.addListener(cancel)

	numbersCh := make(chan uint64, newBlockChannelBufferSize)
	go func() {
		defer close(numbersCh)
		defer c.removeListener(id)

		var (
			latest uint64
			known  bool
		)
		poll := func() bool {
			if known {
				next, ok := c.pollNewBlocks(ctx, latest, numbersCh)
				latest = next
				return ok
			}

			latest, known = c.pollHead(ctx, numbersCh)
			return ctx.Err() == nil
		}

		if !poll() {
			return
		}

		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !poll() {
					return
				}
			}
		}
	}()

	return numbersCh, nil
}

// pollHead emits the current height. It reports false if the height could
// not be read or sent.
func (c *client) pollHead(ctx context.Context, numbersCh chan<- uint64) (uint64, bool) {
	head, err := c.GetBlockNumber(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn(ctx, "block height poll failed", "error", err)
		}
		return 0, false
	}

	if !chflow.Send(ctx, numbersCh, head) {
		return 0, false
	}

	return head, true
}

// pollNewBlocks emits every number in (last, head], skipping the oldest
// ones beyond maxGap. It returns the new last emitted number and false if
// ctx ended while sending.
func (c *client) pollNewBlocks(ctx context.Context, last uint64, numbersCh chan<- uint64) (uint64, bool) {
	head, err := c.GetBlockNumber(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn(ctx, "new block poll failed", "error", err)
		}
		return last, true
	}

	if head <= last {
		return last, true
	}

	from := last + 1
	if head-last > c.maxGap {
		from = head - c.maxGap + 1
	}

	for n := from; n <= head; n++ {
		if !chflow.Send(ctx, numbersCh, n) {
			return last, false
		}
	}

	return head, true
}

// RemoveAllListeners implements chain.Provider.
func (c *client) RemoveAllListeners() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, cancel := range c.listeners {
		cancel()
		delete(c.listeners, id)
	}
}

func (c *client) addListener(cancel context.CancelFunc) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	c.listeners[c.nextID] = cancel
	return c.nextID
}

func (c *client) removeListener(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cancel, ok := c.listeners[id]; ok {
		cancel()
		delete(c.listeners, id)
	}
}
