// internal/superv/runner.go
package superv

import (
	"context"
	"time"
)

// Run starts the ticker loop and emits PollResult on the provided channel.
// No overlap. No retries.
func (p *Poller) Run(ctx context.Context, out chan<- PollResult) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			out <- p.PollOnce()
		}
	}
}
