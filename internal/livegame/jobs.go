package livegame

import (
	"context"

	logx "ruche/pkg/logx"
)

// SweepFunc adapts Cache.Sweep to a scheduler task body.
func SweepFunc(c *Cache, log logx.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		expired, orphans := c.Sweep(c.now())
		if expired > 0 || orphans > 0 {
			log.Debug("live cache swept",
				logx.Int("expired", expired),
				logx.Int("orphans", orphans),
				logx.Duration("none_ttl", c.noneTTL),
			)
		}
		return nil
	}
}
