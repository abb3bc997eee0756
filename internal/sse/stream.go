package sse

import (
	"context"
	"time"
)

const (
	DefaultDebounce  = 500 * time.Millisecond
	DefaultKeepAlive = 15 * time.Second
	// RetryMillis is the reconnect delay advertised to clients.
	RetryMillis = 3000
)

type Frame struct {
	ID   uint64
	Data string
}

// FrameWriter is the transport side of a stream.
type FrameWriter interface {
	WriteFrame(f Frame) error
	KeepAlive() error
}

// Stream turns one receiver into debounced frames: at most one frame per
// kind per window, the newest LiveGame winning and SummonerMatches carrying
// how many updates this connection has seen.
type Stream struct {
	rx *Receiver

	debounce  time.Duration
	keepAlive time.Duration
	flushC    <-chan time.Time
	keepC     <-chan time.Time

	nextID   uint64
	matchVer uint64 // last topic match version observed
	matches  uint64

	live      Event
	livePend  bool
	matchPend bool
	onFrame   func(Frame)
}

type StreamOption func(*Stream)

func WithDebounce(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.debounce = d
		}
	}
}

func WithKeepAlive(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// WithTicks replaces the flush and keep-alive tickers.
func WithTicks(flush, keepAlive <-chan time.Time) StreamOption {
	return func(s *Stream) {
		s.flushC = flush
		s.keepC = keepAlive
	}
}

// OnFrame observes every frame written.
func OnFrame(fn func(Frame)) StreamOption { return func(s *Stream) { s.onFrame = fn } }

func NewStream(rx *Receiver, opts ...StreamOption) *Stream {
	s := &Stream{
		rx:        rx,
		debounce:  DefaultDebounce,
		keepAlive: DefaultKeepAlive,
		matchVer:  rx.MatchBase(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run writes frames until the receiver is closed or ctx ends. Pending
// updates are flushed before returning on a closed receiver.
func (s *Stream) Run(ctx context.Context, w FrameWriter) error {
	flushC, keepC := s.flushC, s.keepC
	if flushC == nil {
		t := time.NewTicker(s.debounce)
		defer t.Stop()
		flushC = t.C
	}
	if keepC == nil {
		t := time.NewTicker(s.keepAlive)
		defer t.Stop()
		keepC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.rx.C:
			if !ok {
				return s.flush(w)
			}
			s.absorb(ev)
		case <-flushC:
			open := s.drain()
			if err := s.flush(w); err != nil {
				return err
			}
			if !open {
				return nil
			}
		case <-keepC:
			if err := w.KeepAlive(); err != nil {
				return err
			}
		}
	}
}

// drain absorbs whatever is already queued so a flush sees the newest
// state. It reports false once the receiver is closed.
func (s *Stream) drain() bool {
	for {
		select {
		case ev, ok := <-s.rx.C:
			if !ok {
				return false
			}
			s.absorb(ev)
		default:
			return true
		}
	}
}

func (s *Stream) absorb(ev Event) {
	switch ev.Kind {
	case KindLiveGame:
		s.live = ev
		s.livePend = true
	case KindSummonerMatches:
		if ev.Version <= s.matchVer {
			return
		}
		s.matches += ev.Version - s.matchVer
		s.matchVer = ev.Version
		s.matchPend = true
	}
}

func (s *Stream) flush(w FrameWriter) error {
	if s.livePend {
		s.livePend = false
		if err := s.write(w, s.live); err != nil {
			return err
		}
	}
	if s.matchPend {
		s.matchPend = false
		if err := s.write(w, SummonerMatches(s.matches)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stream) write(w FrameWriter, ev Event) error {
	s.nextID++
	f := Frame{ID: s.nextID, Data: ev.Encode()}
	if err := w.WriteFrame(f); err != nil {
		return err
	}
	if s.onFrame != nil {
		s.onFrame(f)
	}
	return nil
}
