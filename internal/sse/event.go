package sse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Kind uint8

const (
	KindLiveGame        Kind = 0
	KindSummonerMatches Kind = 1
)

// Event is the payload of one SSE frame.
//
// LiveGame with Present=false means the summoner is not in a match. Present
// carries no meaning for SummonerMatches and is cleared by Normalize.
type Event struct {
	Kind    Kind
	Version uint64
	Present bool
}

func LiveGame(version uint64) Event {
	return Event{Kind: KindLiveGame, Version: version, Present: true}
}
func NotLive() Event { return Event{Kind: KindLiveGame} }
func SummonerMatches(version uint64) Event {
	return Event{Kind: KindSummonerMatches, Version: version}
}

// Normalize clears the fields the wire form does not carry.
func (e Event) Normalize() Event {
	switch {
	case e.Kind == KindSummonerMatches:
		e.Present = false
	case e.Kind == KindLiveGame && !e.Present:
		e.Version = 0
	}
	return e
}

// Encode renders "<kind>:<value>"; a LiveGame without a match has an empty
// value.
func (e Event) Encode() string {
	e = e.Normalize()
	if e.Kind == KindLiveGame && !e.Present {
		return "0:"
	}
	return strconv.Itoa(int(e.Kind)) + ":" + strconv.FormatUint(e.Version, 10)
}

func (e Event) String() string { return e.Encode() }

var ErrBadEvent = errors.New("sse: malformed event")

// ParseEvent is the inverse of Encode. An unparsable LiveGame value reads as
// "not live".
func ParseEvent(s string) (Event, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Event{}, fmt.Errorf("%w: %q", ErrBadEvent, s)
	}
	switch parts[0] {
	case "0":
		v, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return NotLive(), nil
		}
		return LiveGame(v), nil
	case "1":
		v, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return Event{}, fmt.Errorf("%w: version %q", ErrBadEvent, parts[1])
		}
		return SummonerMatches(v), nil
	default:
		return Event{}, fmt.Errorf("%w: kind %q", ErrBadEvent, parts[0])
	}
}
