// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"context"
	"errors"
)

// Error kinds shared by every component. Callers wrap them with
// fmt.Errorf("...: %w", Err...) and classify with errors.Is.
var (
	// ErrConfiguration is invalid input. Fatal, never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrBackendUnavailable means the synthesis backend could not be reached
	// after the client's transient retries.
	ErrBackendUnavailable = errors.New("synthesis backend unavailable")

	// ErrBackendRejected is a permanent, structural rejection of a job.
	ErrBackendRejected = errors.New("synthesis backend rejected job")

	// ErrBackendFailed means the backend accepted the job but its execution
	// reported an error.
	ErrBackendFailed = errors.New("synthesis job failed")

	// ErrTimedOut means a poll budget elapsed before the job finished.
	ErrTimedOut = errors.New("timed out")

	// ErrArtifactMissing means no artifact could be retrieved for a job.
	ErrArtifactMissing = errors.New("artifact missing")

	// ErrAdvisoryUnavailable is a transient advisory service failure.
	ErrAdvisoryUnavailable = errors.New("advisory service unavailable")

	// ErrAdvisoryInvalidResponse is malformed advisory output.
	ErrAdvisoryInvalidResponse = errors.New("advisory service returned an invalid response")

	ErrAlreadyExpanded      = errors.New("node already expanded")
	ErrAlreadyExpanding     = errors.New("node expansion already in progress")
	ErrNodeNotReady         = errors.New("node not ready")
	ErrNodeNotFound         = errors.New("node not found")
	ErrGenerationInProgress = errors.New("node generation already in progress")
	ErrAlreadyAccepted      = errors.New("node already accepted")

	// ErrCancelled marks a node whose run was abandoned by its caller.
	ErrCancelled = errors.New("cancelled")
)

// kinds maps each sentinel to the name stored in NodeError.Kind.
var kinds = []struct {
	err  error
	name string
}{
	{ErrCancelled, "cancelled"},
	{ErrConfiguration, "configuration_error"},
	{ErrBackendUnavailable, "backend_unavailable"},
	{ErrBackendRejected, "backend_rejected"},
	{ErrBackendFailed, "backend_failed"},
	{ErrTimedOut, "timed_out"},
	{ErrArtifactMissing, "artifact_missing"},
	{ErrAdvisoryUnavailable, "advisory_unavailable"},
	{ErrAdvisoryInvalidResponse, "advisory_invalid_response"},
	{ErrAlreadyExpanded, "already_expanded"},
	{ErrAlreadyExpanding, "already_expanding"},
	{ErrNodeNotReady, "node_not_ready"},
	{ErrNodeNotFound, "node_not_found"},
	{ErrGenerationInProgress, "generation_in_progress"},
	{ErrAlreadyAccepted, "already_accepted"},
}

// Kind returns the taxonomy name of err, or "internal" when err matches none
// of the known kinds. Bare context errors map to "cancelled".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "internal"
}

// Reason converts err into the NodeError recorded on a failed node.
func Reason(err error) *NodeError {
	if err == nil {
		return nil
	}
	return &NodeError{Kind: Kind(err), Message: err.Error()}
}
