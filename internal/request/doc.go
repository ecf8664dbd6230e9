// Package request turns inbound submissions into scheduled tasks.
//
// A submission names a service and carries one or more task objects of the
// form {task|taskName, taskData, index?, stream?}. The Gateway checks each
// object's structure, validates its taskData against the schema, opens the
// object's stream under its response_listener_event and submits the task.
// Structure problems are reported on the global_error stream; validation
// failures and admission rejections on the object's own stream.
package request
