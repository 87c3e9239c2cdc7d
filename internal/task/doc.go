// Package task schedules report generation. A Dispatcher accepts requests,
// queues them per report kind and runs them on an elastic set of worker
// goroutines whose size follows the number of live units. It owns the
// report lifecycle: queuing, execution through the kind's pipeline,
// cancellation of pending work, persistence hand-off, listener
// notification and retention-based eviction from the in-memory cache.
package task
