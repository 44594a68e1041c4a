// Package types defines the shared types used across all Intervoxa packages.
//
// These types form the lingua franca between the STT providers, the transcript
// recorder, the analysis engine, the session state machine, and the evaluator
// clients. They are intentionally minimal — each package defines its own domain
// types, but cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// Transcript represents a speech-to-text result from an STT provider.
// Both partial (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial (interim) transcript.
	// Final text is never revised; interim text may be superseded by a later result.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the provider
	// does not report confidence.
	Confidence float64

	// Words contains per-word detail when available (Deepgram).
	// May be nil for providers that don't support word-level output.
	Words []WordDetail

	// Timestamp marks when the utterance started, relative to stream start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// ActivityEvent reports a transition of the audio input between speech and
// silence. Events are best-effort and may be noisy; consumers must debounce
// them rather than treating individual transitions as authoritative.
type ActivityEvent struct {
	// Active is true when the input transitioned to "has audio", false when it
	// transitioned to silence.
	Active bool

	// At is the wall-clock time of the transition.
	At time.Time
}

// SessionState is the lifecycle state of an interview attempt.
type SessionState string

const (
	// StateIdle is the state before the interview has been started.
	StateIdle SessionState = "idle"

	// StateLoading is the transient state entered around every external call.
	// It always resolves back to a stable state.
	StateLoading SessionState = "loading"

	// StateActive means a question is being answered.
	StateActive SessionState = "active"

	// StatePaused means the attempt is suspended; the timer is stopped but the
	// draft answer and its analysis snapshot are preserved.
	StatePaused SessionState = "paused"

	// StateCompleted is terminal. No further mutation of answers, state, or the
	// question cursor is permitted after entry.
	StateCompleted SessionState = "completed"
)

// IsTerminal reports whether s permits no further transitions.
func (s SessionState) IsTerminal() bool { return s == StateCompleted }

// Question is a single interview question. Immutable once the session starts.
type Question struct {
	ID         string `json:"id"`
	Prompt     string `json:"prompt"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
}

// MediaRefs holds optional references to recorded media for an answer.
// The references are opaque to the controller; storage is an external concern.
type MediaRefs struct {
	AudioURL string `json:"audio_url,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
}

// Answer is a submitted answer for one question. Answers are append-only after
// creation, except for the Evaluation field, which is set exactly once.
type Answer struct {
	QuestionID string `json:"question_id"`

	// Text is the submitted answer text, possibly derived from the transcript.
	Text string `json:"text"`

	// Media references recorded audio/video, when any.
	Media *MediaRefs `json:"media,omitempty"`

	// Snapshot is the analysis snapshot captured synchronously at submission
	// time. Nil for typed-only answers.
	Snapshot *AnalysisSnapshot `json:"snapshot,omitempty"`

	// Evaluation is the externally computed score and feedback.
	Evaluation *Evaluation `json:"evaluation,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
}

// FillerHit records a single filler-word match in the transcript. Hits are not
// deduplicated — repetition matters for scoring.
type FillerHit struct {
	// Surface is the form that actually appeared in the transcript (e.g. "Umm").
	Surface string `json:"surface"`

	// Canonical is the lexicon entry that matched (e.g. "um").
	Canonical string `json:"canonical"`
}

// AnalysisSnapshot is the full set of derived communication metrics at a point
// in time. It is rebuilt from the cumulative transcript on every update, never
// patched incrementally, so interim-text revisions cannot cause drift.
type AnalysisSnapshot struct {
	WordCount int `json:"word_count"`

	// SpeakingTime is elapsed time minus accumulated silence.
	SpeakingTime time.Duration `json:"speaking_time"`

	// SilenceTime is the accumulated pause time from activity transitions.
	SilenceTime time.Duration `json:"silence_time"`

	// SpeechRate is words per minute over SpeakingTime.
	SpeechRate int `json:"speech_rate"`

	// Fillers lists every filler-word match in transcript order.
	Fillers []FillerHit `json:"fillers"`

	// Keywords is the display prefix of extracted keywords, first-seen order,
	// deduplicated, capped for display.
	Keywords []string `json:"keywords"`

	// Confidence is the heuristic confidence score in [0, 100].
	Confidence int `json:"confidence"`

	// Clarity is the heuristic clarity score in [0, 100].
	Clarity int `json:"clarity"`

	// CapturedAt is when this snapshot was computed.
	CapturedAt time.Time `json:"captured_at"`
}

// Evaluation is the external scoring result for a single answer.
type Evaluation struct {
	// Score is the overall answer score in [0, 100].
	Score int `json:"score"`

	// Feedback is free-text feedback for the candidate.
	Feedback string `json:"feedback"`

	Strengths    []string `json:"strengths,omitempty"`
	Improvements []string `json:"improvements,omitempty"`
}

// PerformanceSummary aggregates the evaluations of a completed attempt. It may
// cover fewer than all questions when some were never answered.
type PerformanceSummary struct {
	OverallScore int    `json:"overall_score"`
	Summary      string `json:"summary"`

	// AnsweredQuestions is how many questions received an evaluated answer.
	AnsweredQuestions int `json:"answered_questions"`
}

// InterviewConfig describes the interview a user requested.
type InterviewConfig struct {
	Role       string `json:"role"`
	Company    string `json:"company,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`

	// QuestionCount is how many questions the evaluator should generate.
	QuestionCount int `json:"question_count"`
}

// InterviewSession is one interview attempt. It is owned exclusively by the
// session state machine for the duration of the attempt and mutated only by
// its transition functions.
type InterviewSession struct {
	ID        string          `json:"id"`
	Config    InterviewConfig `json:"config"`
	Questions []Question      `json:"questions"`

	// Answers is sparse — indexed by question, keyed by question ID.
	Answers map[string]*Answer `json:"answers"`

	// State is the authoritative lifecycle state.
	State SessionState `json:"state"`

	// CurrentQuestion is the index of the question awaiting an answer.
	// Invariant: CurrentQuestion < len(Questions) while State is active or paused.
	CurrentQuestion int `json:"current_question"`

	// Elapsed is the cumulative active time across pause/resume cycles.
	Elapsed time.Duration `json:"elapsed"`

	// Performance is the final summary, set when State becomes completed.
	Performance *PerformanceSummary `json:"performance,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AnsweredInOrder returns the recorded answers ordered by question index.
// Questions without an answer are skipped.
func (s *InterviewSession) AnsweredInOrder() []*Answer {
	out := make([]*Answer, 0, len(s.Answers))
	for _, q := range s.Questions {
		if a, ok := s.Answers[q.ID]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Progress reports answered question count over total.
func (s *InterviewSession) Progress() (answered, total int) {
	return len(s.Answers), len(s.Questions)
}
