// Package events provides an in-process event bus.
//
// Components that want work done in the background emit a TaskRequestEvent
// instead of calling the scheduler directly; the task package registers a
// handler that turns such events into background tasks.
package events
