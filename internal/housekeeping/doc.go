// Package housekeeping runs the daemon's periodic maintenance: work-directory
// cleanup for finished jobs, retention purges of terminal records, batch
// aggregate resynchronization, and a queue/disk health sweep. Schedules come
// from the [housekeeping] config section and run on a shared cron scheduler.
package housekeeping
