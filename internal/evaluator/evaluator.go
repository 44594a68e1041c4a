// Package evaluator defines the external evaluation collaborator consumed by
// the session state machine.
//
// The platform treats question generation and answer scoring as opaque
// request/response calls against a remote service. Implementations live in
// subpackages (openai, anyllm, mock); the state machine only sees this
// interface and never assumes success — a timeout or transport error is
// treated identically to an explicit failure.
package evaluator

import (
	"context"

	"github.com/MrWong99/intervoxa/pkg/types"
)

// Client is the external evaluation collaborator. All calls are bounded by the
// caller's context deadline; implementations must not retry internally, since
// retry is a caller decision and duplicate side effects must be avoided.
type Client interface {
	// CreateInterview generates a new interview session shell, including its
	// question list, for the given configuration.
	CreateInterview(ctx context.Context, cfg types.InterviewConfig) (*types.InterviewSession, error)

	// StartInterview marks the interview as started on the collaborator side
	// and returns the authoritative session payload.
	StartInterview(ctx context.Context, id string) (*types.InterviewSession, error)

	// LoadInterview fetches an existing session so an attempt can be resumed
	// mid-interview. The returned payload carries the lifecycle state and the
	// current-question cursor.
	LoadInterview(ctx context.Context, id string) (*types.InterviewSession, error)

	// EvaluateAnswer scores a single answer.
	EvaluateAnswer(ctx context.Context, sessionID, questionID, answerText string, media *types.MediaRefs) (*types.Evaluation, error)

	// EndInterview finalizes the interview and returns the aggregate
	// performance summary. The summary may cover fewer than all questions if
	// some were never answered.
	EndInterview(ctx context.Context, sessionID string) (*types.PerformanceSummary, error)

	// PauseInterview and ResumeInterview are fire-and-forget acknowledgements;
	// failures are surfaced as warnings, never as session failures.
	PauseInterview(ctx context.Context, sessionID string) error
	ResumeInterview(ctx context.Context, sessionID string) error
}
