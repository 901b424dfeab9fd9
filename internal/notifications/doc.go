// Package notifications delivers pipeline events via ntfy.
//
// The default implementation publishes to the topic configured in config.toml
// and gracefully degrades to a no-op when notifications are disabled. Delivery
// failures are the caller's to log; they never fail a job.
package notifications
