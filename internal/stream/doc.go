// Package stream implements the response protocol every task speaks.
//
// A task writes to an Emitter: text chunks, data objects, status updates,
// errors, broker values and finally a single end marker. Each event has the
// same JSON shape on every carrier: {"text": ...}, {"data": ...},
// {"info": ...}, {"error": ...}, {"broker": ...} or {"end": true}. Events
// sent after the end marker are dropped.
//
// Three carriers are provided: an SSE sink the HTTP handler drains (pull), a
// websocket sink that writes frames as they are produced (push), and a
// Recorder that keeps everything in memory for background tasks and tests.
package stream
