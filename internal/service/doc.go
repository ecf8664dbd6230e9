// Package service resolves and runs the handlers behind every task.
//
// A Service is a named set of HandlerFuncs. Services are registered with a
// Factory under a Lifecycle: singletons are built once and shared, while
// multi-instance services are built for each call and cleaned up afterwards.
//
// The Dispatcher implements task.Executor. For each task it answers
// MIC_CHECK directly, acquires the service from the Factory, looks the
// handler up case-insensitively and runs it. Handlers report results on the
// call's stream and fail with an *Error when the client should see a
// specific error type and message.
//
// AdminService is the built-in ADMIN_SERVICE with operational tasks such as
// GET_ENVIRONMENT and TEST_DATABASE_CONNECTION.
package service
