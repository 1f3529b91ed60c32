// Package workflow hosts the recurring playlist cleanup orchestrator.
//
// # Lifecycle
//
// An instance cycles through three phases and then continues as new:
//
//	refreshing_token -> cleaning_up -> waiting -> (generation+1) refreshing_token
//
// Every transition is written to the [Store] before the orchestrator blocks, whether on an
// activity, a retry back-off or the recurrence timer. A restarted process resumes each
// running instance from its checkpoint with [Host.Recover]; timers use the persisted WakeAt.
//
// # Failure Handling
//
//   - Refresh step failure ends the instance as failed
//   - Cleanup failures are retried per [RetryPolicy]; exhaustion ends the instance as failed
//   - Failed and terminated instances are never restarted automatically
//
// Continue-as-new purges the previous generation's history and writes the fresh checkpoint in
// one transaction, so history does not grow with the number of cycles.
package workflow
