// Package events turns report stage milestones into events and fans them out
// to handlers such as the Kafka publisher.
//
// The primary components are:
//   - ReportEvent: one milestone of one report
//   - Handler: a component that consumes events
//   - InMemoryEmitter: dispatches events to registered handlers
//   - Bridge: a scheduler listener that queues events off the worker path
package events
