package sse

import (
	"context"
	"time"

	logx "ruche/pkg/logx"
)

// DefaultGrace is how long an empty topic survives before it is purged.
const DefaultGrace = 10 * time.Second

// CleanupFunc adapts Hub.Purge to a scheduler task body. onPurge receives
// the ids of removed topics.
func CleanupFunc(h *Hub, grace time.Duration, onPurge func(ids []int64), log logx.Logger) func(ctx context.Context) error {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return func(ctx context.Context) error {
		ids := h.Purge(h.now(), grace)
		if len(ids) == 0 {
			return nil
		}
		if onPurge != nil {
			onPurge(ids)
		}
		log.Debug("sse topics purged", logx.Int("count", len(ids)), logx.Any("summoners", ids))
		return nil
	}
}
