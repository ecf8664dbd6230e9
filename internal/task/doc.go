// Package task holds the unit of schedulable work and the Scheduler that
// admits it. Tasks go into one of two bounded priority queues (interactive
// and background), each split into a short and a long lane by service
// classification, and are executed by two fixed worker pools under per-user
// quotas. Exceeding a quota cancels every outstanding task of that user.
package task
