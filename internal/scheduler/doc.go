// Package scheduler drives the periodic due-post scan.
//
// A single cron entry fires every poll interval. Each tick:
//   - lists scheduled posts whose scheduled_at has passed, oldest due first
//   - hands them to the dispatcher with bounded concurrency, initiating in order
//   - records a TickReport
//
// A tick that fires while the previous one is still running is skipped, not
// queued. Stop drains the running tick before returning.
package scheduler
