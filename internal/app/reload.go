package app

import (
	"context"
	"strings"

	"ruche/internal/config"
	logx "ruche/pkg/logx"
)

// restartSections cannot be applied to a running process.
var restartSections = map[string]bool{
	"http":    true,
	"riot":    true,
	"storage": true,
	"sse":     true,
}

// reloadLoop applies published configs until ctx ends or sub closes.
// Logging and live-game lookup tuning apply live; everything else is
// reported as needing a restart.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			newCfg = latest(sub, newCfg)
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// latest coalesces a burst, keeping only the newest config.
func latest(sub <-chan *config.Config, cfg *config.Config) *config.Config {
	for {
		select {
		case newer, ok := <-sub:
			if !ok {
				return cfg
			}
			if newer != nil {
				cfg = newer
			}
		default:
			return cfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	a.logs.Apply(mapLogConfig(newCfg))

	for _, s := range sections {
		switch {
		case restartSections[s]:
			a.log.Warn(s+" config changed; restart required for changes to take effect", logx.String("section", s))
		case s == "live_game":
			pc, err := mapPollerConfig(newCfg)
			if err != nil {
				a.log.Warn("invalid live_game config; keeping previous", logx.Err(err))
				continue
			}
			a.poller.Apply(pc)
			if scheduleChanged(oldCfg, newCfg) {
				a.log.Warn("live_game schedules changed; restart required for changes to take effect")
			}
		}
	}

	a.log.Info("config reloaded", fields...)
}

func scheduleChanged(oldCfg, newCfg *config.Config) bool {
	o, n := oldCfg.LiveGame, newCfg.LiveGame
	return strings.TrimSpace(o.PollSchedule) != strings.TrimSpace(n.PollSchedule) ||
		strings.TrimSpace(o.SweepSchedule) != strings.TrimSpace(n.SweepSchedule) ||
		strings.TrimSpace(o.NoneTTL) != strings.TrimSpace(n.NoneTTL)
}
