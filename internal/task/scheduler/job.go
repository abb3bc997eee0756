package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a unit of periodic work owned by a Scheduler.
//
// Due and Reschedule may be called from different goroutines; implementations
// must synchronize their next-due state.
type Job interface {
	Name() string
	// Due returns the next time the job should run.
	Due() time.Time
	Run(ctx context.Context) error
	// Reschedule computes the next due time from the start of the run that
	// just finished (exclusive jobs) or was just spawned (concurrent jobs).
	Reschedule(startedAt time.Time)
	// Exclusive jobs never overlap with themselves.
	Exclusive() bool
}

// Task is the stock Job: a func driven by a cron.Schedule.
type Task struct {
	name      string
	schedule  cron.Schedule
	exclusive bool
	timeout   time.Duration
	fn        func(ctx context.Context) error

	mu   sync.Mutex
	next time.Time
}

type TaskOption func(*Task)

// Exclusive marks the task as non-overlapping.
func Exclusive() TaskOption { return func(t *Task) { t.exclusive = true } }

// WithTimeout bounds every run with context.WithTimeout.
func WithTimeout(d time.Duration) TaskOption { return func(t *Task) { t.timeout = d } }

// FirstRunAt overrides the initial due time (default: schedule.Next(now)).
func FirstRunAt(at time.Time) TaskOption { return func(t *Task) { t.next = at } }

func NewTask(name string, schedule cron.Schedule, fn func(ctx context.Context) error, opts ...TaskOption) *Task {
	t := &Task{name: name, schedule: schedule, fn: fn}
	for _, o := range opts {
		o(t)
	}
	if t.next.IsZero() {
		t.next = schedule.Next(time.Now())
	}
	return t
}

func (t *Task) Name() string    { return t.name }
func (t *Task) Exclusive() bool { return t.exclusive }

func (t *Task) Due() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

func (t *Task) Reschedule(startedAt time.Time) {
	next := t.schedule.Next(startedAt)
	t.mu.Lock()
	t.next = next
	t.mu.Unlock()
}

func (t *Task) Run(ctx context.Context) error {
	if t.fn == nil {
		return nil
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.fn(ctx)
}
