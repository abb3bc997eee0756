package scheduler

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron"},
		{name: "cron with seconds", raw: "*/10 * * * * *", kind: SpecCron, source: "cron"},
		{name: "descriptor", raw: "@every 5s", kind: SpecCron, source: "cron"},
		{name: "duration", raw: "5s", kind: SpecInterval, source: "duration", duration: 5 * time.Second},
		{name: "sub-second", raw: "500ms", kind: SpecInterval, source: "duration", duration: 500 * time.Millisecond},
		{name: "prefixed interval", raw: "every:30s", kind: SpecInterval, source: "duration", duration: 30 * time.Second},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
			if _, err := got.Schedule(); err != nil {
				t.Fatalf("Schedule() error: %v", err)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	if _, err := ParseSchedule("not-a-schedule"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	spec, err := ParseSchedule("cron:99 * * * *")
	if err != nil {
		t.Fatalf("prefix parse should defer validation: %v", err)
	}
	if _, err := spec.Schedule(); err == nil {
		t.Fatal("expected cron validation error")
	}
}

func TestEveryKeepsSubSecondPrecision(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 1, 1, 0, 0, 0, 123, time.UTC)
	if got := Every(250 * time.Millisecond).Next(base); !got.Equal(base.Add(250 * time.Millisecond)) {
		t.Fatalf("Next = %v", got)
	}
}

func TestParseCronScheduleDefault(t *testing.T) {
	t.Parallel()
	sched, err := ParseCronSchedule("", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	base := time.Unix(1000, 0)
	if got := sched.Next(base); !got.Equal(base.Add(5 * time.Second)) {
		t.Fatalf("default schedule Next = %v", got)
	}
	if _, err := ParseCronSchedule("", 0); err == nil {
		t.Fatal("expected error without default")
	}
}
