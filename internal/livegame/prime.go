package livegame

import (
	"context"
	"errors"

	logx "ruche/pkg/logx"
)

// Prime is called when the first subscriber of a summoner arrives. A cached
// live game is re-announced; with no cached status the summoner is resolved
// in the background so the first connection does not wait for the next
// cycle. At most one resolution per summoner is in flight.
func (p *Poller) Prime(summonerID int64) {
	_, st := p.cache.Status(summonerID)
	switch st {
	case StateInGame:
		p.hub.PublishLive(summonerID)
		return
	case StateNotInGame:
		return
	}

	p.primeMu.Lock()
	if _, busy := p.priming[summonerID]; busy {
		p.primeMu.Unlock()
		return
	}
	p.priming[summonerID] = struct{}{}
	p.primeWG.Add(1)
	p.primeMu.Unlock()

	go func() {
		defer func() {
			p.primeMu.Lock()
			delete(p.priming, summonerID)
			p.primeMu.Unlock()
			p.primeWG.Done()
		}()
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("prime panicked", logx.Int64("summoner", summonerID), logx.Any("panic", r))
			}
		}()
		if err := p.resolveOne(p.root, summonerID); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Warn("prime failed", logx.Int64("summoner", summonerID), logx.Err(err))
		}
	}()
}

// WaitPrimes blocks until background resolutions have finished.
func (p *Poller) WaitPrimes() { p.primeWG.Wait() }

func (p *Poller) resolveOne(ctx context.Context, summonerID int64) error {
	p.primes.Add(1)
	cfg := p.config()
	rows, err := p.store.SummonersByIDs(ctx, []int64{summonerID})
	if err != nil {
		p.storeFailures.Add(1)
		return errors.Join(ErrPersistence, err)
	}
	sm, ok := rows[summonerID]
	if !ok {
		return nil
	}

	g, err := p.lookup(ctx, sm, cfg)
	if err != nil {
		// Fail open: the next cycle retries.
		return nil
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	// A cycle may have settled the summoner meanwhile.
	if _, st := p.cache.Status(summonerID); st != StateUnknown {
		return nil
	}
	if g == nil {
		p.cache.MarkNone(summonerID)
		return nil
	}
	if !p.cache.Link(g.MatchID, summonerID) {
		snap, err := p.buildSnapshot(ctx, g, sm.Platform)
		if err != nil {
			if errors.Is(err, ErrPersistence) {
				p.storeFailures.Add(1)
			}
			return err
		}
		p.cache.Set(g.MatchID, []int64{summonerID}, snap)
	}
	p.transitions.Add(1)
	p.hub.PublishLive(summonerID)
	return nil
}
