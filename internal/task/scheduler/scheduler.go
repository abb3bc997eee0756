package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "ruche/pkg/logx"
)

// idleWait bounds how long the loop sleeps when nothing is due soon, so
// jobs registered without a wake signal are still picked up.
const idleWait = time.Second

// slowRun is the duration above which completions log at info.
const slowRun = 750 * time.Millisecond

type entry struct {
	job Job

	// running is the exclusivity guard; set before spawning.
	running  atomic.Bool
	inflight atomic.Int32

	runs      atomic.Uint64
	failures  atomic.Uint64
	panics    atomic.Uint64
	lastStart atomic.Int64 // unix nanos
	lastDur   atomic.Int64
	lastErr   atomic.Value // string
}

type Scheduler struct {
	log logx.Logger
	now func() time.Time

	mu      sync.Mutex
	entries []*entry
	names   map[string]struct{}

	wake chan struct{}
	wg   sync.WaitGroup
}

type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

func New(log logx.Logger, opts ...Option) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		log:   log,
		now:   time.Now,
		names: map[string]struct{}{},
		wake:  make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds a job. Names must be unique. Safe to call while Run is active.
func (s *Scheduler) Register(job Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	s.mu.Lock()
	if _, dup := s.names[job.Name()]; dup {
		s.mu.Unlock()
		return fmt.Errorf("job %q already registered", job.Name())
	}
	s.names[job.Name()] = struct{}{}
	s.entries = append(s.entries, &entry{job: job})
	s.mu.Unlock()

	s.log.Debug("job registered",
		logx.String("name", job.Name()),
		logx.Bool("exclusive", job.Exclusive()),
		logx.Time("due", job.Due()),
	)
	s.signal()
	return nil
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the jobs until ctx is done, then waits for in-flight runs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()
	s.log.Info("service started", logx.Int("jobs", n))

	timer := time.NewTimer(idleWait)
	defer timer.Stop()

	for {
		wait := s.tick(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			start := time.Now()
			s.log.Info("stop requested")
			s.wg.Wait()
			s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
			return nil
		case <-timer.C:
		case <-s.wake:
		}
	}
}

// tick spawns every due idle job and returns how long to sleep.
func (s *Scheduler) tick(ctx context.Context) time.Duration {
	s.mu.Lock()
	entries := append([]*entry(nil), s.entries...)
	s.mu.Unlock()

	now := s.now()
	next := now.Add(idleWait)
	for _, e := range entries {
		// A running exclusive job wakes the loop itself when it completes.
		if e.job.Exclusive() && e.running.Load() {
			continue
		}
		due := e.job.Due()
		if !due.After(now) {
			if !s.spawn(ctx, e, now) || e.job.Exclusive() {
				continue
			}
			due = e.job.Due()
		}
		if due.Before(next) {
			next = due
		}
	}
	if d := next.Sub(now); d > 0 {
		return d
	}
	return time.Millisecond
}

func (s *Scheduler) spawn(ctx context.Context, e *entry, now time.Time) bool {
	if e.job.Exclusive() {
		if !e.running.CompareAndSwap(false, true) {
			return false
		}
	} else {
		e.job.Reschedule(now)
	}
	e.inflight.Add(1)
	s.wg.Add(1)
	go s.execute(ctx, e, now)
	return true
}

func (s *Scheduler) execute(ctx context.Context, e *entry, startedAt time.Time) {
	defer s.wg.Done()
	defer func() {
		e.inflight.Add(-1)
		if e.job.Exclusive() {
			e.job.Reschedule(startedAt)
			e.running.Store(false)
			s.signal()
		}
	}()

	name := e.job.Name()
	e.lastStart.Store(startedAt.UnixNano())
	s.log.Debug("task.started", logx.String("task", name))

	start := time.Now()
	err := s.runGuarded(ctx, e)
	dur := time.Since(start)

	e.runs.Add(1)
	e.lastDur.Store(int64(dur))
	if err != nil {
		e.failures.Add(1)
		e.lastErr.Store(err.Error())
		s.log.Warn("task.failed", logx.String("task", name), logx.Err(err), logx.Duration("dur", dur))
		return
	}
	e.lastErr.Store("")
	if dur >= slowRun {
		s.log.Info("task.completed", logx.String("task", name), logx.Duration("dur", dur))
	} else {
		s.log.Debug("task.completed", logx.String("task", name), logx.Duration("dur", dur))
	}
}

// runGuarded converts a panic inside the job into an error so one bad job
// can't take down the loop or its siblings.
func (s *Scheduler) runGuarded(ctx context.Context, e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("task.panic", logx.String("task", e.job.Name()), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return e.job.Run(ctx)
}

// JobInfo is a point-in-time view of one job, for metrics and debugging.
type JobInfo struct {
	Name         string
	Exclusive    bool
	Next         time.Time
	InFlight     int
	Runs         uint64
	Failures     uint64
	Panics       uint64
	LastStart    time.Time
	LastDuration time.Duration
	LastError    string
}

func (s *Scheduler) Snapshot() []JobInfo {
	s.mu.Lock()
	entries := append([]*entry(nil), s.entries...)
	s.mu.Unlock()

	out := make([]JobInfo, 0, len(entries))
	for _, e := range entries {
		info := JobInfo{
			Name:         e.job.Name(),
			Exclusive:    e.job.Exclusive(),
			Next:         e.job.Due(),
			InFlight:     int(e.inflight.Load()),
			Runs:         e.runs.Load(),
			Failures:     e.failures.Load(),
			Panics:       e.panics.Load(),
			LastDuration: time.Duration(e.lastDur.Load()),
		}
		if ns := e.lastStart.Load(); ns != 0 {
			info.LastStart = time.Unix(0, ns)
		}
		if v, ok := e.lastErr.Load().(string); ok {
			info.LastError = v
		}
		out = append(out, info)
	}
	return out
}
