// Package worker runs the out-of-request background lane.
//
// A cron schedule drives Scheduler.Tick. Each tick walks every tool session,
// runs its enabled background workers through an external Runner and records
// one BackgroundTask per run. Ticks never overlap; a tick still in progress
// when the next one fires causes that firing to be skipped.
package worker
