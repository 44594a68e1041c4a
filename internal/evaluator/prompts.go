package evaluator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/intervoxa/pkg/types"
)

// Prompt construction and response parsing shared by all LLM-backed
// evaluation clients. Backends are instructed to answer with bare JSON;
// parsing strips markdown code fences, which several models insist on adding.

const questionsSystemPrompt = `You are an experienced technical interviewer.
Generate interview questions for the given role. Respond with a JSON array
only, no prose, where each element is:
{"prompt": string, "category": string, "difficulty": "easy"|"medium"|"hard"}`

const evaluationSystemPrompt = `You are an experienced technical interviewer
scoring a candidate's spoken answer. Judge correctness, depth, and structure.
Respond with JSON only:
{"score": integer 0-100, "feedback": string, "strengths": [string], "improvements": [string]}`

const summarySystemPrompt = `You are an experienced technical interviewer
writing a final debrief for a completed mock interview. Respond with JSON only:
{"overall_score": integer 0-100, "summary": string}`

func questionsUserPrompt(cfg types.InterviewConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d interview questions for a %s role.", cfg.QuestionCount, cfg.Role)
	if cfg.Company != "" {
		fmt.Fprintf(&b, " The candidate is interviewing at %s.", cfg.Company)
	}
	if cfg.Difficulty != "" {
		fmt.Fprintf(&b, " Target difficulty: %s.", cfg.Difficulty)
	}
	return b.String()
}

func evaluationUserPrompt(question types.Question, answerText string) string {
	return fmt.Sprintf("Question (%s, %s): %s\n\nCandidate's answer:\n%s",
		question.Category, question.Difficulty, question.Prompt, answerText)
}

func summaryUserPrompt(sess *types.InterviewSession) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Role: %s. %d of %d questions answered.\n",
		sess.Config.Role, len(sess.Answers), len(sess.Questions))
	for i, q := range sess.Questions {
		ans, ok := sess.Answers[q.ID]
		if !ok {
			fmt.Fprintf(&b, "Q%d: %s — not answered.\n", i+1, q.Prompt)
			continue
		}
		score := -1
		feedback := ""
		if ans.Evaluation != nil {
			score = ans.Evaluation.Score
			feedback = ans.Evaluation.Feedback
		}
		fmt.Fprintf(&b, "Q%d: %s — score %d. %s\n", i+1, q.Prompt, score, feedback)
	}
	return b.String()
}

// questionPayload mirrors the JSON shape requested from the model.
type questionPayload struct {
	Prompt     string `json:"prompt"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
}

type summaryPayload struct {
	OverallScore int    `json:"overall_score"`
	Summary      string `json:"summary"`
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func parseQuestions(raw string) ([]questionPayload, error) {
	var out []questionPayload
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return nil, fmt.Errorf("evaluator: parse question list: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("evaluator: model returned no questions")
	}
	return out, nil
}

func parseEvaluation(raw string) (*types.Evaluation, error) {
	var out types.Evaluation
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return nil, fmt.Errorf("evaluator: parse evaluation: %w", err)
	}
	out.Score = clampScore(out.Score)
	return &out, nil
}

func parseSummary(raw string) (*summaryPayload, error) {
	var out summaryPayload
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return nil, fmt.Errorf("evaluator: parse summary: %w", err)
	}
	out.OverallScore = clampScore(out.OverallScore)
	return &out, nil
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
