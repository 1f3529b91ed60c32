// Package models defines the domain types shared by the spc playlist cleanup service.
//
// The package contains three groups of types:
//
// 1. Workflow input and playlist data
//   - [WorkflowInput] : the contributor list, playlist id and OAuth state a cleanup runs against
//   - [TrackItem] / [TrackPage] : playlist entries as returned by the music service
//
// 2. Credentials
//   - [Secret] : a named vault entry with an optional expiry
//
// 3. Durable workflow state
//   - [Checkpoint] : the persisted position of an orchestrator instance
//   - [HistoryEvent] : one entry of the current generation's history
//
// Secret names are derived from the OAuth state via [AccessTokenSecret] and [RefreshTokenSecret].
package models
