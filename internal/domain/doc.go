// Package domain holds the report entity, its state machine and the payload
// types that flow through the pipelines. It depends on nothing else in the
// module.
package domain
