// Package scheduler runs independently scheduled jobs.
//
// The loop wakes at the earliest due time, spawns every due job in its own
// goroutine and reschedules it from its robfig/cron schedule. Exclusive jobs
// are guarded by a compare-and-swap running flag that is released on every
// exit path, panics included. Missed runs are not queued: an overrunning job
// is simply due again on the next pass.
package scheduler
