// Package api exposes taskrelay over HTTP.
//
// Tasks are submitted either with POST /api/tasks/{service}, which answers
// with a server-sent event stream carrying the task's events, or over the
// websocket at /api/socket, where every stream is delivered as frames named
// after its response_listener_event. Both carriers emit the same wire
// events. GET /api/schema returns the merged task schema so clients can
// validate before submitting. POST /api/background queues a task whose
// output is recorded instead of streamed, and GET /health reports whether
// the scheduler is running.
package api
