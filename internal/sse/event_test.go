package sse

import (
	"errors"
	"testing"
)

func TestEventEncoding(t *testing.T) {
	cases := []struct {
		ev   Event
		wire string
	}{
		{LiveGame(7), "0:7"},
		{NotLive(), "0:"},
		{SummonerMatches(5), "1:5"},
		{SummonerMatches(0), "1:0"},
		{Event{Kind: KindSummonerMatches, Version: 3}, "1:3"},
	}
	for _, tc := range cases {
		if got := tc.ev.Encode(); got != tc.wire {
			t.Fatalf("Encode(%+v) = %q, want %q", tc.ev, got, tc.wire)
		}
		back, err := ParseEvent(tc.wire)
		if err != nil {
			t.Fatalf("ParseEvent(%q): %v", tc.wire, err)
		}
		if back != tc.ev {
			t.Fatalf("ParseEvent(%q) = %+v, want %+v", tc.wire, back, tc.ev)
		}
	}
}

func TestParseEventLenientLiveValue(t *testing.T) {
	ev, err := ParseEvent("0:abc")
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev != NotLive() {
		t.Fatalf("got %+v, want not live", ev)
	}
}

func TestParseEventRejects(t *testing.T) {
	for _, in := range []string{"", "1", "1:", "1:x", "2:4", "0:1:2", "a:1"} {
		if _, err := ParseEvent(in); !errors.Is(err, ErrBadEvent) {
			t.Fatalf("ParseEvent(%q) err = %v, want ErrBadEvent", in, err)
		}
	}
}

func TestEventNormalize(t *testing.T) {
	cases := []struct {
		in   Event
		want Event
	}{
		{Event{Kind: KindSummonerMatches, Version: 3, Present: true}, SummonerMatches(3)},
		{Event{Kind: KindLiveGame, Version: 9}, NotLive()},
		{LiveGame(2), LiveGame(2)},
	}
	for _, tc := range cases {
		if got := tc.in.Normalize(); got != tc.want {
			t.Fatalf("Normalize(%+v) = %+v, want %+v", tc.in, got, tc.want)
		}
		back, err := ParseEvent(tc.in.Encode())
		if err != nil {
			t.Fatalf("ParseEvent(%q): %v", tc.in.Encode(), err)
		}
		if back != tc.want {
			t.Fatalf("round trip of %+v = %+v, want %+v", tc.in, back, tc.want)
		}
	}
}
