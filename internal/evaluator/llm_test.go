package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/intervoxa/pkg/types"
)

// scriptedCompleter answers by matching a substring of the system prompt.
type scriptedCompleter struct {
	questions  string
	evaluation string
	summary    string
	err        error
	calls      int
}

func (s *scriptedCompleter) Complete(_ context.Context, system, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	switch {
	case strings.Contains(system, "Generate interview questions"):
		return s.questions, nil
	case strings.Contains(system, "scoring a candidate"):
		return s.evaluation, nil
	default:
		return s.summary, nil
	}
}

func newScripted() *scriptedCompleter {
	return &scriptedCompleter{
		questions: `[
			{"prompt": "Design a URL shortener", "category": "system design", "difficulty": "medium"},
			{"prompt": "Explain goroutine scheduling", "category": "concurrency", "difficulty": "hard"}
		]`,
		evaluation: `{"score": 82, "feedback": "clear structure", "strengths": ["tradeoffs"], "improvements": ["capacity estimates"]}`,
		summary:    `{"overall_score": 81, "summary": "strong fundamentals"}`,
	}
}

func TestLLM_CreateInterview(t *testing.T) {
	client := NewLLM(newScripted(), nil)
	sess, err := client.CreateInterview(context.Background(), types.InterviewConfig{Role: "backend", QuestionCount: 2})
	if err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}
	if len(sess.Questions) != 2 {
		t.Fatalf("questions = %d, want 2", len(sess.Questions))
	}
	if sess.Questions[0].ID == "" || sess.Questions[0].ID == sess.Questions[1].ID {
		t.Fatal("question IDs must be unique and non-empty")
	}
	if sess.State != types.StateIdle {
		t.Fatalf("state = %s, want idle", sess.State)
	}
}

func TestLLM_CreateInterview_FencedJSON(t *testing.T) {
	s := newScripted()
	s.questions = "```json\n" + s.questions + "\n```"
	client := NewLLM(s, nil)
	sess, err := client.CreateInterview(context.Background(), types.InterviewConfig{Role: "backend", QuestionCount: 2})
	if err != nil {
		t.Fatalf("CreateInterview with fenced response: %v", err)
	}
	if len(sess.Questions) != 2 {
		t.Fatalf("questions = %d, want 2", len(sess.Questions))
	}
}

func TestLLM_EvaluateAndEnd(t *testing.T) {
	client := NewLLM(newScripted(), nil)
	ctx := context.Background()
	sess, err := client.CreateInterview(ctx, types.InterviewConfig{Role: "backend", QuestionCount: 2})
	if err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}

	eval, err := client.EvaluateAnswer(ctx, sess.ID, sess.Questions[0].ID, "I would hash the URL", nil)
	if err != nil {
		t.Fatalf("EvaluateAnswer: %v", err)
	}
	if eval.Score != 82 || eval.Feedback != "clear structure" {
		t.Fatalf("evaluation = %+v", eval)
	}

	summary, err := client.EndInterview(ctx, sess.ID)
	if err != nil {
		t.Fatalf("EndInterview: %v", err)
	}
	if summary.OverallScore != 81 {
		t.Fatalf("overall = %d, want 81", summary.OverallScore)
	}
	if summary.AnsweredQuestions != 1 {
		t.Fatalf("answered = %d, want 1", summary.AnsweredQuestions)
	}

	loaded, err := client.LoadInterview(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LoadInterview: %v", err)
	}
	if loaded.State != types.StateCompleted {
		t.Fatalf("stored state = %s, want completed", loaded.State)
	}
}

func TestLLM_ScoreClamped(t *testing.T) {
	s := newScripted()
	s.evaluation = `{"score": 250, "feedback": "over-enthusiastic model"}`
	client := NewLLM(s, nil)
	ctx := context.Background()
	sess, _ := client.CreateInterview(ctx, types.InterviewConfig{Role: "backend", QuestionCount: 2})

	eval, err := client.EvaluateAnswer(ctx, sess.ID, sess.Questions[0].ID, "text", nil)
	if err != nil {
		t.Fatalf("EvaluateAnswer: %v", err)
	}
	if eval.Score != 100 {
		t.Fatalf("score = %d, want clamped to 100", eval.Score)
	}
}

func TestLLM_BackendErrorPropagates(t *testing.T) {
	s := newScripted()
	client := NewLLM(s, nil)
	ctx := context.Background()
	sess, _ := client.CreateInterview(ctx, types.InterviewConfig{Role: "backend", QuestionCount: 2})

	s.err = errors.New("rate limited")
	if _, err := client.EvaluateAnswer(ctx, sess.ID, sess.Questions[0].ID, "text", nil); err == nil {
		t.Fatal("expected backend error to propagate")
	}
}

func TestLLM_PauseResumeTrackState(t *testing.T) {
	client := NewLLM(newScripted(), nil)
	ctx := context.Background()
	sess, _ := client.CreateInterview(ctx, types.InterviewConfig{Role: "backend", QuestionCount: 2})

	if _, err := client.StartInterview(ctx, sess.ID); err != nil {
		t.Fatalf("StartInterview: %v", err)
	}
	if err := client.PauseInterview(ctx, sess.ID); err != nil {
		t.Fatalf("PauseInterview: %v", err)
	}
	loaded, _ := client.LoadInterview(ctx, sess.ID)
	if loaded.State != types.StatePaused {
		t.Fatalf("state = %s, want paused", loaded.State)
	}
	if err := client.ResumeInterview(ctx, sess.ID); err != nil {
		t.Fatalf("ResumeInterview: %v", err)
	}
	loaded, _ = client.LoadInterview(ctx, sess.ID)
	if loaded.State != types.StateActive {
		t.Fatalf("state = %s, want active", loaded.State)
	}
}

func TestLLM_UnknownSession(t *testing.T) {
	client := NewLLM(newScripted(), nil)
	if _, err := client.LoadInterview(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

type blockingCompleter struct{}

func (blockingCompleter) Complete(ctx context.Context, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestWithTimeout_BoundsCall(t *testing.T) {
	c := WithTimeout(blockingCompleter{}, 20*time.Millisecond)

	start := time.Now()
	_, err := c.Complete(context.Background(), "sys", "user")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("call took %v, timeout did not apply", elapsed)
	}
}

func TestWithTimeout_ZeroIsPassthrough(t *testing.T) {
	next := blockingCompleter{}
	if got := WithTimeout(next, 0); got != Completer(next) {
		t.Error("zero timeout should return the wrapped completer unchanged")
	}
}
