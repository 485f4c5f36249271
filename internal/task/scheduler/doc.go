// Package scheduler registers cron triggers and computes their next run times.
//
// Execution is delegated to internal/task/engine. The scheduler is responsible only for:
//   - registering schedules, upserted by name
//   - computing next trigger times in the configured timezone
//   - enqueueing tasks into the task engine
//
// Replies adapts the service to configuration.Scheduler so every
// schedule-backed entry becomes one named job that sends its reply.
package scheduler
