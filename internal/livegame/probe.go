package livegame

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"ruche/internal/riot"
	"ruche/internal/storage"
	logx "ruche/pkg/logx"
)

type lookupResult struct {
	id   int64
	game *riot.CurrentGame
	err  error
}

// lookup resolves one summoner under the per-call timeout.
func (p *Poller) lookup(ctx context.Context, sm storage.Summoner, cfg Config) (*riot.CurrentGame, error) {
	platform, ok := riot.ParsePlatform(sm.Platform)
	if !ok {
		return nil, fmt.Errorf("summoner %d: unknown platform %q", sm.ID, sm.Platform)
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.LookupTimeout)
	defer cancel()
	p.lookups.Add(1)
	g, err := p.games.CurrentGame(ctx, platform, sm.Puuid)
	if err != nil {
		p.lookupFailures.Add(1)
		return nil, err
	}
	return g, nil
}

// lookupAll runs one lookup per id, at most cfg.Concurrency in flight.
func (c *cycle) lookupAll(ctx context.Context, ids []int64) []lookupResult {
	out := make([]lookupResult, len(ids))
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, id := range ids {
		i := i
		out[i].id = id
		sm := c.summoners[id]
		g.Go(func() error {
			out[i].game, out[i].err = c.p.lookup(ctx, sm, c.cfg)
			return nil
		})
	}
	_ = g.Wait()
	c.lookups += len(ids)

	for _, r := range out {
		if r.err != nil {
			c.p.log.Debug("live lookup failed",
				logx.Int64("summoner", r.id),
				logx.Err(r.err),
			)
		}
	}
	return out
}

// probeGroups issues one lookup per cached match using its lowest id. A
// probe that still sees the match vouches for the whole group; otherwise only
// the probe's answer is kept and the rest of the group is demoted.
func (c *cycle) probeGroups(ctx context.Context) {
	if len(c.groups) == 0 {
		return
	}
	matchIDs := make([]string, 0, len(c.groups))
	for m := range c.groups {
		matchIDs = append(matchIDs, m)
	}
	sort.Strings(matchIDs)

	probes := make([]int64, len(matchIDs))
	for i, m := range matchIDs {
		probes[i] = c.groups[m][0]
	}
	results := c.lookupAll(ctx, probes)

	for i, r := range results {
		matchID := matchIDs[i]
		newID := ""
		if r.err == nil && r.game != nil {
			newID = r.game.MatchID
		}
		c.resolve(r.id, newID)

		if newID == matchID {
			c.absorb(r.game)
			for _, id := range c.groups[matchID] {
				if !c.resolved[id] {
					c.resolve(id, matchID)
				}
			}
			continue
		}
		c.absorb(r.game)
	}
}

type pending struct {
	id     int64
	cohort string // former match, empty for the unknown bucket
}

// drainUnknown resolves everything still unresolved in waves. A wave holds
// at most one member of each former group so that the first hit of a group
// can settle its roster-mates through absorb. A group whose sampled member
// turns out to be in no match, or in one that took none of its mates, has
// split up; its remaining members then share waves freely.
func (c *cycle) drainUnknown(ctx context.Context) {
	var queue []pending
	for _, id := range c.unknown {
		queue = append(queue, pending{id: id})
	}
	for matchID, members := range c.groups {
		for _, id := range members {
			if !c.resolved[id] {
				queue = append(queue, pending{id: id, cohort: matchID})
			}
		}
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i].id < queue[j].id })

	split := map[string]bool{}
	for {
		wave := make([]int64, 0, c.cfg.Concurrency)
		sampled := map[string]int64{} // cohort -> member looked up this wave
		rest := queue[:0]
		for _, q := range queue {
			if c.resolved[q.id] {
				continue
			}
			limited := q.cohort != "" && !split[q.cohort]
			if len(wave) >= c.cfg.Concurrency {
				rest = append(rest, q)
				continue
			}
			if limited {
				if _, taken := sampled[q.cohort]; taken {
					rest = append(rest, q)
					continue
				}
				sampled[q.cohort] = q.id
			}
			wave = append(wave, q.id)
		}
		queue = rest
		if len(wave) == 0 {
			return
		}
		for _, r := range c.lookupAll(ctx, wave) {
			if r.err != nil || r.game == nil {
				c.resolve(r.id, "")
				continue
			}
			c.resolve(r.id, r.game.MatchID)
			c.absorb(r.game)
		}
		for cohort, id := range sampled {
			if !c.settledMates(cohort, id) {
				split[cohort] = true
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// settledMates reports whether id's lookup placed at least one other member
// of its former group in the same match.
func (c *cycle) settledMates(cohort string, id int64) bool {
	matchID := c.next[id]
	if matchID == "" {
		return false
	}
	for _, m := range c.groups[cohort] {
		if m != id && c.resolved[m] && c.next[m] == matchID {
			return true
		}
	}
	return false
}
