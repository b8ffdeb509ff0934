// Package notifier hands rendered revert notifications to the publisher.
//
// Notify only enqueues. A single worker drains the queue in arrival order,
// waits on a token-bucket limiter and calls the publisher once per message.
// Failed publishes are logged, recorded in the history and emitted as
// notifier.failed bus events; they are not retried.
//
// # Dedup
//
// A revision id is published at most once per DedupWindow, so a feed replay
// after a stream reconnect does not post the same revert twice.
package notifier
