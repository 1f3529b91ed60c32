// Package repositories implements SQLite persistence for the cleanup service.
//
// Key Implementations:
//   - [SecretRepository] : the credential vault holding access and refresh tokens
//   - [CounterRepository] : durable counter values plus an audit trail of mutations
//   - [InstanceRepository] : orchestrator checkpoints and per-generation history
//
// History rows are ordered by a sequence from [NextSequence], which increments a
// dedicated single-row sequence table inside the caller's transaction.
package repositories
