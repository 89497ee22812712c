// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// JobState is a GenerationJob state. A job is transient: it lives for one
// orchestration run and is never persisted.
type JobState string

const (
	JobBuilt         JobState = "built"
	JobSubmitted     JobState = "submitted"
	JobPolling       JobState = "polling"
	JobCompleted     JobState = "completed"
	JobBackendFailed JobState = "backend_failed"
	JobEvaluated     JobState = "evaluated"
	JobAccepted      JobState = "accepted"
	JobRetrying      JobState = "retrying"
	JobExhausted     JobState = "exhausted"
)

// GenerationJob tracks one node's current attempt.
type GenerationJob struct {
	NodeID string

	// Attempt is 1-based and bounded by the configured max iterations.
	Attempt int

	// BackendJobID is the synthesis backend's id for the current attempt,
	// reset on every retry.
	BackendJobID string

	State JobState
}
