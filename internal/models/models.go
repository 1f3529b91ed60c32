package models

import (
	"fmt"
	"time"
)

// WorkflowInput is the payload a cleanup instance is started with and carries across every generation.
type WorkflowInput struct {
	Contributors []string `json:"contributors" msgpack:"contributors"`
	PlaylistID   string   `json:"playlistId" msgpack:"playlist_id"`
	State        string   `json:"state" msgpack:"state"`
}

// Validate reports whether the input names a playlist and a credential state.
//
// An empty contributor list is valid here; callers starting new instances reject it separately.
func (w *WorkflowInput) Validate() error {
	if w == nil {
		return fmt.Errorf("input is required")
	}
	if w.PlaylistID == "" {
		return fmt.Errorf("playlistId is required")
	}
	if w.State == "" {
		return fmt.Errorf("state is required")
	}
	return nil
}

// Clone returns a deep copy so generations never share the contributor slice.
func (w WorkflowInput) Clone() WorkflowInput {
	c := w
	c.Contributors = append([]string(nil), w.Contributors...)
	return c
}

// TrackItem is one playlist entry: the track URI and the id of the user who added it.
type TrackItem struct {
	URI     string `json:"uri"`
	AddedBy string `json:"addedBy"`
}

// TrackPage is one page of playlist entries starting at Offset.
type TrackPage struct {
	Items  []TrackItem `json:"items"`
	Total  int         `json:"total"`
	Offset int         `json:"offset"`
}

// Secret is a named vault value, such as an access or refresh token.
//
// ExpiresOn is nil when the vault holds no expiry for the value.
type Secret struct {
	Name      string     `json:"name"`
	Value     string     `json:"-"`
	ExpiresOn *time.Time `json:"expiresOn,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// AccessTokenSecret names the vault entry holding the access token for state.
func AccessTokenSecret(state string) string {
	return state + "-AccessToken"
}

// RefreshTokenSecret names the vault entry holding the refresh token for state.
func RefreshTokenSecret(state string) string {
	return state + "-RefreshToken"
}

// CredentialRecord is the pair of tokens held for one OAuth state.
type CredentialRecord struct {
	AccessToken  string
	RefreshToken string
	// ExpiresOn is the zero time when the vault holds no expiry for the access token.
	ExpiresOn time.Time
}

// CounterState is a snapshot of a durable counter.
type CounterState struct {
	Key    string `json:"key"`
	Value  int64  `json:"value"`
	Exists bool   `json:"exists"`
}

// CounterMutation is one applied counter operation and the value it produced.
type CounterMutation struct {
	Key       string    `json:"key"`
	Op        string    `json:"op"`
	Amount    int64     `json:"amount"`
	Value     int64     `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

// CounterKey names the removal counter for state.
func CounterKey(state string) string {
	return state
}

// Phase is the step a cleanup instance is executing or suspended in.
type Phase string

const (
	PhaseRefreshingToken Phase = "refreshing_token"
	PhaseCleaningUp      Phase = "cleaning_up"
	PhaseWaiting         Phase = "waiting"
)

// Status is the lifecycle state of an instance.
type Status string

const (
	StatusRunning    Status = "running"
	StatusFailed     Status = "failed"
	StatusTerminated Status = "terminated"
)

// Terminal reports whether the instance will make no further progress.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusTerminated
}

// OrchestratorName is the only orchestrator function the service hosts.
const OrchestratorName = "PlaylistCleanupOrchestrator"

// InstanceID returns the stable instance id for the cleanup of state.
func InstanceID(state string) string {
	return "playlist-cleanup:" + state
}

// Checkpoint is the durable position of an orchestrator instance.
//
// LogicalTime is the orchestration clock, stamped when a phase is committed and reused on
// replay. WakeAt is set while the instance is suspended in a timer (the recurrence wait or a
// retry back-off).
type Checkpoint struct {
	InstanceID  string        `json:"id"`
	Generation  int           `json:"generation"`
	RunID       string        `json:"runId"`
	Phase       Phase         `json:"phase"`
	Status      Status        `json:"status"`
	Input       WorkflowInput `json:"input"`
	Attempt     int           `json:"attempt"`
	LogicalTime time.Time     `json:"logicalTime"`
	WakeAt      *time.Time    `json:"wakeAt,omitempty"`
	LastResult  string        `json:"lastResult,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// EventKind classifies a [HistoryEvent].
type EventKind string

const (
	EventStarted           EventKind = "started"
	EventPhase             EventKind = "phase"
	EventActivityCompleted EventKind = "activity_completed"
	EventActivityFailed    EventKind = "activity_failed"
	EventRetryScheduled    EventKind = "retry_scheduled"
	EventTimerScheduled    EventKind = "timer_scheduled"
	EventContinuedAsNew    EventKind = "continued_as_new"
	EventFailed            EventKind = "failed"
	EventTerminated        EventKind = "terminated"
)

// HistoryEvent is one record of the current generation. History is cleared on continue-as-new.
type HistoryEvent struct {
	Sequence   int       `json:"sequence"`
	InstanceID string    `json:"instanceId"`
	Generation int       `json:"generation"`
	RunID      string    `json:"runId"`
	Kind       EventKind `json:"kind"`
	Phase      Phase     `json:"phase,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// InstanceLinks is returned when an instance is started: its id and the URIs to query or terminate it.
type InstanceLinks struct {
	ID                string `json:"id"`
	StatusQueryGetURI string `json:"statusQueryGetUri"`
	TerminatePostURI  string `json:"terminatePostUri"`
}
