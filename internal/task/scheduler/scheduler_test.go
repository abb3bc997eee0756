package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "ruche/pkg/logx"
)

// concurrencyProbe records the highest number of overlapping runs.
type concurrencyProbe struct {
	cur, max, runs atomic.Int32
}

func (p *concurrencyProbe) run(hold time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		n := p.cur.Add(1)
		for {
			m := p.max.Load()
			if n <= m || p.max.CompareAndSwap(m, n) {
				break
			}
		}
		p.runs.Add(1)
		time.Sleep(hold)
		p.cur.Add(-1)
		return nil
	}
}

func runFor(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d + 2*time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestExclusiveJobNeverOverlaps(t *testing.T) {
	s := New(logx.Nop())
	var probe concurrencyProbe
	// Due every millisecond but each run takes 15ms.
	job := NewTask("poller", Every(time.Millisecond), probe.run(15*time.Millisecond), Exclusive(), FirstRunAt(time.Now()))
	if err := s.Register(job); err != nil {
		t.Fatal(err)
	}

	runFor(t, s, 200*time.Millisecond)

	if got := probe.max.Load(); got != 1 {
		t.Fatalf("max concurrent runs = %d, want 1", got)
	}
	if got := probe.runs.Load(); got < 3 {
		t.Fatalf("runs = %d, expected the overrunning job to keep running", got)
	}
}

func TestConcurrentJobMayOverlap(t *testing.T) {
	s := New(logx.Nop())
	var probe concurrencyProbe
	job := NewTask("fanout", Every(2*time.Millisecond), probe.run(20*time.Millisecond), FirstRunAt(time.Now()))
	if err := s.Register(job); err != nil {
		t.Fatal(err)
	}

	runFor(t, s, 150*time.Millisecond)

	if got := probe.max.Load(); got < 2 {
		t.Fatalf("max concurrent runs = %d, want overlap for a non-exclusive job", got)
	}
}

func TestPanicIsIsolated(t *testing.T) {
	s := New(logx.Nop())
	var healthy atomic.Int32
	bad := NewTask("bad", Every(5*time.Millisecond), func(ctx context.Context) error { panic("boom") }, Exclusive(), FirstRunAt(time.Now()))
	good := NewTask("good", Every(5*time.Millisecond), func(ctx context.Context) error {
		healthy.Add(1)
		return nil
	}, Exclusive(), FirstRunAt(time.Now()))
	if err := s.Register(bad); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(good); err != nil {
		t.Fatal(err)
	}

	runFor(t, s, 100*time.Millisecond)

	if healthy.Load() < 3 {
		t.Fatalf("healthy job ran %d times; the panicking sibling stalled it", healthy.Load())
	}
	var badInfo JobInfo
	for _, info := range s.Snapshot() {
		if info.Name == "bad" {
			badInfo = info
		}
	}
	if badInfo.Panics < 2 {
		t.Fatalf("panicking job ran %d times; running flag was not released", badInfo.Panics)
	}
	if badInfo.InFlight != 0 {
		t.Fatalf("inflight = %d after stop", badInfo.InFlight)
	}
	if badInfo.Failures != badInfo.Panics {
		t.Fatalf("failures = %d, panics = %d", badInfo.Failures, badInfo.Panics)
	}
}

func TestFailuresAreRecorded(t *testing.T) {
	s := New(logx.Nop())
	var once sync.Once
	ran := make(chan struct{})
	job := NewTask("flaky", Every(time.Hour), func(ctx context.Context) error {
		once.Do(func() { close(ran) })
		return errors.New("upstream down")
	}, Exclusive(), FirstRunAt(time.Now()))
	if err := s.Register(job); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
	cancel()
	<-done

	info := s.Snapshot()[0]
	if info.Runs != 1 || info.Failures != 1 || info.LastError != "upstream down" {
		t.Fatalf("unexpected info: %+v", info)
	}
	// Rescheduled from its start time, one interval later.
	if d := info.Next.Sub(info.LastStart); d != time.Hour {
		t.Fatalf("next - start = %s, want 1h", d)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := New(logx.Nop())
	noop := func(ctx context.Context) error { return nil }
	if err := s.Register(NewTask("a", Every(time.Second), noop)); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(NewTask("a", Every(time.Second), noop)); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestTaskTimeout(t *testing.T) {
	task := NewTask("slow", Every(time.Second), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(10*time.Millisecond))
	err := task.Run(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() = %v, want deadline exceeded", err)
	}
}
