// Package mock provides a scripted in-memory evaluator.Client for tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/intervoxa/internal/evaluator"
	"github.com/MrWong99/intervoxa/pkg/types"
)

var _ evaluator.Client = (*Client)(nil)

// Client is a scripted evaluator. Zero value is usable: it generates sessions
// with QuestionCount placeholder questions and scores every answer 75.
// Set the Err fields to force failures, or the Fn fields to override behavior
// entirely. All fields must be set before first use; counters are safe for
// concurrent reads afterwards.
type Client struct {
	// CreateErr etc. force the corresponding call to fail.
	CreateErr   error
	StartErr    error
	LoadErr     error
	EvaluateErr error
	EndErr      error
	PauseErr    error
	ResumeErr   error

	// EvaluateFn, when set, replaces the default scoring.
	EvaluateFn func(sessionID, questionID, answerText string) (*types.Evaluation, error)

	// EndFn, when set, replaces the default summary.
	EndFn func(sessionID string) (*types.PerformanceSummary, error)

	// Sessions holds payloads returned by LoadInterview, keyed by ID.
	Sessions map[string]*types.InterviewSession

	// Delay is applied to Evaluate and End calls, honoring context
	// cancellation, to simulate slow backends.
	Delay time.Duration

	mu            sync.Mutex
	evaluateCalls int
	endCalls      int
	pauseCalls    int
	resumeCalls   int
	lastAnswer    string
}

// CreateInterview returns a fresh session shell in the idle state.
func (c *Client) CreateInterview(_ context.Context, cfg types.InterviewConfig) (*types.InterviewSession, error) {
	if c.CreateErr != nil {
		return nil, c.CreateErr
	}
	n := cfg.QuestionCount
	if n <= 0 {
		n = 3
	}
	questions := make([]types.Question, n)
	for i := range questions {
		questions[i] = types.Question{
			ID:         uuid.NewString(),
			Prompt:     fmt.Sprintf("Question %d for a %s role", i+1, cfg.Role),
			Category:   "general",
			Difficulty: cfg.Difficulty,
		}
	}
	return &types.InterviewSession{
		ID:        uuid.NewString(),
		Config:    cfg,
		Questions: questions,
		Answers:   make(map[string]*types.Answer),
		State:     types.StateIdle,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (c *Client) StartInterview(_ context.Context, id string) (*types.InterviewSession, error) {
	if c.StartErr != nil {
		return nil, c.StartErr
	}
	if s, ok := c.Sessions[id]; ok {
		return s, nil
	}
	return nil, nil
}

func (c *Client) LoadInterview(_ context.Context, id string) (*types.InterviewSession, error) {
	if c.LoadErr != nil {
		return nil, c.LoadErr
	}
	s, ok := c.Sessions[id]
	if !ok {
		return nil, fmt.Errorf("mock: no session %q", id)
	}
	return s, nil
}

func (c *Client) EvaluateAnswer(ctx context.Context, sessionID, questionID, answerText string, _ *types.MediaRefs) (*types.Evaluation, error) {
	if err := c.sleep(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.evaluateCalls++
	c.lastAnswer = answerText
	c.mu.Unlock()
	if c.EvaluateErr != nil {
		return nil, c.EvaluateErr
	}
	if c.EvaluateFn != nil {
		return c.EvaluateFn(sessionID, questionID, answerText)
	}
	return &types.Evaluation{Score: 75, Feedback: "solid answer"}, nil
}

func (c *Client) EndInterview(ctx context.Context, sessionID string) (*types.PerformanceSummary, error) {
	if err := c.sleep(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.endCalls++
	c.mu.Unlock()
	if c.EndErr != nil {
		return nil, c.EndErr
	}
	if c.EndFn != nil {
		return c.EndFn(sessionID)
	}
	return &types.PerformanceSummary{OverallScore: 75, Summary: "done"}, nil
}

func (c *Client) PauseInterview(context.Context, string) error {
	c.mu.Lock()
	c.pauseCalls++
	c.mu.Unlock()
	return c.PauseErr
}

func (c *Client) ResumeInterview(context.Context, string) error {
	c.mu.Lock()
	c.resumeCalls++
	c.mu.Unlock()
	return c.ResumeErr
}

// EvaluateCalls reports how many times EvaluateAnswer ran to completion.
func (c *Client) EvaluateCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evaluateCalls
}

// EndCalls reports how many times EndInterview ran to completion.
func (c *Client) EndCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endCalls
}

// PauseCalls reports how many pause acknowledgements were received.
func (c *Client) PauseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauseCalls
}

// ResumeCalls reports how many resume acknowledgements were received.
func (c *Client) ResumeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumeCalls
}

// LastAnswer returns the most recently evaluated answer text.
func (c *Client) LastAnswer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAnswer
}

func (c *Client) sleep(ctx context.Context) error {
	if c.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(c.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
