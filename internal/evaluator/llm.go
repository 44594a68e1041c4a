package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/intervoxa/pkg/types"
)

// Completer abstracts a chat-completion backend. Backends live in subpackages
// (openai, anyllm); middleware such as a circuit breaker can wrap one.
type Completer interface {
	// Complete sends one system+user exchange and returns the model's text.
	Complete(ctx context.Context, system, user string) (string, error)
}

var _ Client = (*LLM)(nil)

// LLM implements Client on top of any Completer: question generation, answer
// scoring, and the final summary are single-shot completions with JSON
// responses; session bookkeeping lives in a Store.
type LLM struct {
	backend Completer
	store   *Store
	log     *slog.Logger
}

// NewLLM creates an LLM evaluation client over the given backend.
func NewLLM(backend Completer, log *slog.Logger) *LLM {
	if log == nil {
		log = slog.Default()
	}
	return &LLM{backend: backend, store: NewStore(), log: log}
}

// CreateInterview implements Client.
func (l *LLM) CreateInterview(ctx context.Context, cfg types.InterviewConfig) (*types.InterviewSession, error) {
	if cfg.QuestionCount <= 0 {
		cfg.QuestionCount = 5
	}
	raw, err := l.backend.Complete(ctx, questionsSystemPrompt, questionsUserPrompt(cfg))
	if err != nil {
		return nil, fmt.Errorf("evaluator: generate questions: %w", err)
	}
	payload, err := parseQuestions(raw)
	if err != nil {
		return nil, err
	}

	questions := make([]types.Question, len(payload))
	for i, q := range payload {
		questions[i] = types.Question{
			ID:         uuid.NewString(),
			Prompt:     q.Prompt,
			Category:   q.Category,
			Difficulty: q.Difficulty,
		}
	}
	sess := &types.InterviewSession{
		ID:        uuid.NewString(),
		Config:    cfg,
		Questions: questions,
		Answers:   make(map[string]*types.Answer),
		State:     types.StateIdle,
		CreatedAt: time.Now().UTC(),
	}
	l.store.Put(sess)
	l.log.Info("interview generated", "session_id", sess.ID, "questions", len(questions))
	return copySession(sess), nil
}

// StartInterview implements Client.
func (l *LLM) StartInterview(_ context.Context, id string) (*types.InterviewSession, error) {
	var out *types.InterviewSession
	err := l.store.Update(id, func(sess *types.InterviewSession) error {
		sess.State = types.StateActive
		out = copySession(sess)
		return nil
	})
	return out, err
}

// LoadInterview implements Client.
func (l *LLM) LoadInterview(_ context.Context, id string) (*types.InterviewSession, error) {
	sess, err := l.store.Get(id)
	if err != nil {
		return nil, err
	}
	return copySession(sess), nil
}

// EvaluateAnswer implements Client.
func (l *LLM) EvaluateAnswer(ctx context.Context, sessionID, questionID, answerText string, media *types.MediaRefs) (*types.Evaluation, error) {
	sess, err := l.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	var question *types.Question
	for i := range sess.Questions {
		if sess.Questions[i].ID == questionID {
			question = &sess.Questions[i]
			break
		}
	}
	if question == nil {
		return nil, fmt.Errorf("evaluator: unknown question %q in session %s", questionID, sessionID)
	}

	raw, err := l.backend.Complete(ctx, evaluationSystemPrompt, evaluationUserPrompt(*question, answerText))
	if err != nil {
		return nil, fmt.Errorf("evaluator: score answer: %w", err)
	}
	eval, err := parseEvaluation(raw)
	if err != nil {
		return nil, err
	}

	// Record for EndInterview aggregation.
	recErr := l.store.Update(sessionID, func(sess *types.InterviewSession) error {
		sess.Answers[questionID] = &types.Answer{
			QuestionID:  questionID,
			Text:        answerText,
			Media:       media,
			Evaluation:  eval,
			SubmittedAt: time.Now().UTC(),
		}
		return nil
	})
	if recErr != nil {
		return nil, recErr
	}
	return eval, nil
}

// EndInterview implements Client.
func (l *LLM) EndInterview(ctx context.Context, sessionID string) (*types.PerformanceSummary, error) {
	sess, err := l.store.Get(sessionID)
	if err != nil {
		return nil, err
	}

	raw, err := l.backend.Complete(ctx, summarySystemPrompt, summaryUserPrompt(sess))
	if err != nil {
		return nil, fmt.Errorf("evaluator: summarize interview: %w", err)
	}
	payload, err := parseSummary(raw)
	if err != nil {
		return nil, err
	}

	summary := &types.PerformanceSummary{
		OverallScore:      payload.OverallScore,
		Summary:           payload.Summary,
		AnsweredQuestions: len(sess.Answers),
	}
	if payload.OverallScore == 0 && len(sess.Answers) > 0 {
		summary.OverallScore = meanScore(sess)
	}
	endErr := l.store.Update(sessionID, func(sess *types.InterviewSession) error {
		sess.State = types.StateCompleted
		sess.Performance = summary
		return nil
	})
	if endErr != nil {
		return nil, endErr
	}
	return summary, nil
}

// PauseInterview implements Client.
func (l *LLM) PauseInterview(_ context.Context, sessionID string) error {
	return l.store.Update(sessionID, func(sess *types.InterviewSession) error {
		if sess.State == types.StateActive {
			sess.State = types.StatePaused
		}
		return nil
	})
}

// ResumeInterview implements Client.
func (l *LLM) ResumeInterview(_ context.Context, sessionID string) error {
	return l.store.Update(sessionID, func(sess *types.InterviewSession) error {
		if sess.State == types.StatePaused {
			sess.State = types.StateActive
		}
		return nil
	})
}

// meanScore averages the recorded evaluation scores, rounded.
func meanScore(sess *types.InterviewSession) int {
	sum, n := 0, 0
	for _, a := range sess.Answers {
		if a.Evaluation != nil {
			sum += a.Evaluation.Score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}

// copySession returns a shallow-plus-map copy so callers never share the
// store's mutable instance.
func copySession(sess *types.InterviewSession) *types.InterviewSession {
	cp := *sess
	cp.Answers = make(map[string]*types.Answer, len(sess.Answers))
	for k, v := range sess.Answers {
		cp.Answers[k] = v
	}
	return &cp
}
