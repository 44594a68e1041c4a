// Package session implements the interview session state machine and the
// answer submission pipeline.
//
// The machine owns the authoritative lifecycle of one interview attempt
// (idle → active ⇄ paused → completed), the current-question cursor, and the
// recorded answers. It starts and stops the transcript recorder in lockstep
// with recording actions and snapshots the analysis engine synchronously at
// the moment of submission, so late-arriving speech never changes a submitted
// answer.
//
// The transition table is total: events that are not valid for the current
// state are documented no-ops, never errors, so duplicate user actions cannot
// crash the machine. At most one external call is in flight per session; a
// concurrent attempt is rejected with ErrSessionBusy and performs no mutation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/intervoxa/internal/analysis"
	"github.com/MrWong99/intervoxa/internal/evaluator"
	"github.com/MrWong99/intervoxa/internal/transcript"
	"github.com/MrWong99/intervoxa/pkg/types"
)

// Config holds the dependencies for a [Machine].
type Config struct {
	// Evaluator is the external evaluation collaborator. Required.
	Evaluator evaluator.Client

	// Recorder provides live transcription. Optional; when nil the session
	// supports typed-text answers only.
	Recorder *transcript.Recorder

	// Analysis tunes the communication analysis engine. Its OnSnapshot and
	// Now fields are overridden by the machine.
	Analysis analysis.Config

	// Log defaults to slog.Default.
	Log *slog.Logger

	// Now overrides the clock source, for tests.
	Now func() time.Time
}

// draft is the in-progress, unsubmitted answer for the current question. It
// has its own lock because it is written from recorder and engine callbacks,
// which must never contend on the machine mutex.
type draft struct {
	mu       sync.Mutex
	text     string
	interim  string
	snapshot *types.AnalysisSnapshot
}

// Machine is the session state machine. All exported methods are safe for
// concurrent use and never panic; failures are reported as typed errors.
type Machine struct {
	eval     evaluator.Client
	recorder *transcript.Recorder
	engine   *analysis.Engine
	log      *slog.Logger
	now      func() time.Time
	events   *fanout

	mu       sync.Mutex
	sess     *types.InterviewSession
	inFlight bool

	// segStart is when the current active segment began; zero unless active.
	segStart time.Time

	draft draft
}

// NewMachine creates a Machine with the given dependencies.
func NewMachine(cfg Config) *Machine {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	m := &Machine{
		eval:     cfg.Evaluator,
		recorder: cfg.Recorder,
		log:      log,
		now:      now,
		events:   newFanout(),
	}
	engCfg := cfg.Analysis
	engCfg.OnSnapshot = m.handleSnapshot
	engCfg.Now = now
	m.engine = analysis.NewEngine(engCfg)
	return m
}

// Subscribe registers a listener for state, transcript, and analysis events.
// Call the returned function to unsubscribe.
func (m *Machine) Subscribe() (<-chan Event, func()) {
	return m.events.subscribe()
}

// Create asks the collaborator to generate a new interview for cfg and adopts
// the returned session shell. The machine stays idle until Start.
func (m *Machine) Create(ctx context.Context, cfg types.InterviewConfig) error {
	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		return ErrSessionBusy
	}
	if m.sess != nil && !m.sess.State.IsTerminal() {
		m.mu.Unlock()
		return fmt.Errorf("session: attempt %s still in progress", m.sess.ID)
	}
	m.inFlight = true
	m.mu.Unlock()

	sess, err := m.eval.CreateInterview(ctx, cfg)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false
	if err != nil {
		return fmt.Errorf("session: create interview: %w", errors.Join(ErrEvaluationFailed, err))
	}
	m.adoptLocked(sess)
	m.sess.State = types.StateIdle
	m.log.Info("interview created", "session_id", sess.ID, "questions", len(sess.Questions))
	m.publishStateLocked()
	return nil
}

// Load fetches an existing session so an attempt can resume mid-interview.
// The loaded state and cursor are adopted as-is; a session carrying an
// unrecognized state is rejected with ErrInvalidTransition.
func (m *Machine) Load(ctx context.Context, id string) error {
	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		return ErrSessionBusy
	}
	m.inFlight = true
	m.mu.Unlock()

	sess, err := m.eval.LoadInterview(ctx, id)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false
	if err != nil {
		return fmt.Errorf("session: load interview %s: %w", id, errors.Join(ErrEvaluationFailed, err))
	}
	switch sess.State {
	case types.StateIdle, types.StateActive, types.StatePaused, types.StateCompleted:
	default:
		// Only resting states are adoptable; anything else points at corrupt
		// or incompatible persisted data.
		return fmt.Errorf("session: load interview %s: state %q: %w", id, sess.State, ErrInvalidTransition)
	}
	m.adoptLocked(sess)
	if m.sess.State == types.StateActive {
		m.segStart = m.now()
	}
	m.log.Info("interview loaded", "session_id", id, "state", m.sess.State, "cursor", m.sess.CurrentQuestion)
	m.publishStateLocked()
	return nil
}

// Start transitions idle → active: cursor to 0, timer running. It is a no-op
// in any state other than idle.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	if m.inFlight {
		m.mu.Unlock()
		return ErrSessionBusy
	}
	if m.sess.State != types.StateIdle {
		m.mu.Unlock()
		m.log.Debug("start ignored", "state", m.sess.State)
		return nil
	}
	id := m.sess.ID
	m.inFlight = true
	m.sess.State = types.StateLoading
	m.publishStateLocked()
	m.mu.Unlock()

	sess, err := m.eval.StartInterview(ctx, id)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false
	if err != nil {
		m.sess.State = types.StateIdle
		m.publishStateLocked()
		return fmt.Errorf("session: start interview %s: %w", id, errors.Join(ErrEvaluationFailed, err))
	}
	if sess != nil {
		m.adoptLocked(sess)
	}
	m.sess.State = types.StateActive
	m.sess.CurrentQuestion = 0
	m.segStart = m.now()
	m.log.Info("interview started", "session_id", id)
	m.publishStateLocked()
	return nil
}

// SubmitAnswer runs the answer submission pipeline for questionID.
//
// The analysis snapshot is captured synchronously before the external call,
// and a live recorder is stopped first, so no further transcript events can
// change what is submitted. On evaluation failure the prior state is restored
// and the draft answer stays intact for resubmission. Submitting the last
// question finalizes the interview with the collaborator's performance
// summary.
func (m *Machine) SubmitAnswer(ctx context.Context, questionID, text string, snapshot *types.AnalysisSnapshot, media *types.MediaRefs) error {
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	if m.inFlight {
		m.mu.Unlock()
		return ErrSessionBusy
	}
	prior := m.sess.State
	if prior != types.StateActive && prior != types.StatePaused {
		m.mu.Unlock()
		m.log.Debug("submit ignored", "state", prior, "question_id", questionID)
		return nil
	}
	idx := m.questionIndexLocked(questionID)
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("session: unknown question %q", questionID)
	}

	// Snapshot synchronously at the moment of submission. Stopping the
	// recorder is synchronous too: no transcript callback fires after this.
	if m.recorder != nil && m.recorder.Recording() {
		snap := m.engine.Snapshot()
		m.recorder.Stop()
		if snapshot == nil {
			snapshot = &snap
		}
	}
	draftText, draftSnap := m.draftState()
	if text == "" {
		text = draftText
	}
	if snapshot == nil {
		snapshot = draftSnap
	}

	id := m.sess.ID
	m.inFlight = true
	m.sess.State = types.StateLoading
	m.publishStateLocked()
	m.mu.Unlock()

	eval, err := m.eval.EvaluateAnswer(ctx, id, questionID, text, media)

	m.mu.Lock()
	if err != nil {
		m.inFlight = false
		m.sess.State = prior
		m.publishStateLocked()
		m.mu.Unlock()
		return fmt.Errorf("session: evaluate answer %q: %w", questionID, errors.Join(ErrEvaluationFailed, err))
	}

	m.sess.Answers[questionID] = &types.Answer{
		QuestionID:  questionID,
		Text:        text,
		Media:       media,
		Snapshot:    snapshot,
		Evaluation:  eval,
		SubmittedAt: m.now(),
	}
	m.clearDraft()

	advancing := idx == m.sess.CurrentQuestion
	if advancing && idx == len(m.sess.Questions)-1 {
		// Last question answered: finalize while still holding the in-flight
		// slot, so no other call can interleave.
		m.mu.Unlock()
		summary, endErr := m.eval.EndInterview(ctx, id)
		m.mu.Lock()
		m.inFlight = false
		if endErr != nil {
			// The answer is recorded; the cursor stays on the last question
			// so the caller can retry End.
			m.sess.State = prior
			m.publishStateLocked()
			m.mu.Unlock()
			return fmt.Errorf("session: finalize interview %s: %w", id, errors.Join(ErrEvaluationFailed, endErr))
		}
		m.completeLocked(summary, prior)
		m.sess.CurrentQuestion = idx + 1
		m.log.Info("interview completed", "session_id", id, "answered", len(m.sess.Answers))
		m.publishStateLocked()
		m.mu.Unlock()
		return nil
	}

	m.inFlight = false
	if advancing {
		m.sess.CurrentQuestion = idx + 1
	}
	// Submitting implicitly resumes a paused session.
	m.sess.State = types.StateActive
	if prior == types.StatePaused {
		m.segStart = m.now()
	}
	m.log.Info("answer recorded", "session_id", id, "question_id", questionID, "score", eval.Score)
	m.publishStateLocked()
	m.mu.Unlock()
	return nil
}

// Pause transitions active → paused and stops the visible timer. The draft
// answer and its analysis snapshot are preserved. No-op in any other state.
func (m *Machine) Pause(ctx context.Context) error {
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	if m.sess.State != types.StateActive {
		m.mu.Unlock()
		m.log.Debug("pause ignored", "state", m.stateLocked())
		return nil
	}
	m.sess.Elapsed += m.now().Sub(m.segStart)
	m.segStart = time.Time{}
	m.sess.State = types.StatePaused
	id := m.sess.ID
	m.publishStateLocked()
	m.mu.Unlock()

	// Fire-and-forget acknowledgement; a failure is a warning, not a session
	// failure.
	if err := m.eval.PauseInterview(ctx, id); err != nil {
		m.warn("pause acknowledgement failed", err)
	}
	return nil
}

// Resume transitions paused → active. No-op in any other state.
func (m *Machine) Resume(ctx context.Context) error {
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	if m.sess.State != types.StatePaused {
		m.mu.Unlock()
		m.log.Debug("resume ignored", "state", m.stateLocked())
		return nil
	}
	m.segStart = m.now()
	m.sess.State = types.StateActive
	id := m.sess.ID
	m.publishStateLocked()
	m.mu.Unlock()

	if err := m.eval.ResumeInterview(ctx, id); err != nil {
		m.warn("resume acknowledgement failed", err)
	}
	return nil
}

// End finalizes the attempt from active or paused, storing whatever
// performance summary the collaborator returns. On failure the prior state is
// restored. No-op when idle or already completed.
func (m *Machine) End(ctx context.Context) error {
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	if m.inFlight {
		m.mu.Unlock()
		return ErrSessionBusy
	}
	prior := m.sess.State
	if prior != types.StateActive && prior != types.StatePaused {
		m.mu.Unlock()
		m.log.Debug("end ignored", "state", prior)
		return nil
	}
	if m.recorder != nil {
		m.recorder.Stop()
	}
	id := m.sess.ID
	m.inFlight = true
	m.sess.State = types.StateLoading
	m.publishStateLocked()
	m.mu.Unlock()

	summary, err := m.eval.EndInterview(ctx, id)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false
	if err != nil {
		m.sess.State = prior
		m.publishStateLocked()
		return fmt.Errorf("session: end interview %s: %w", id, errors.Join(ErrEvaluationFailed, err))
	}
	m.completeLocked(summary, prior)
	m.log.Info("interview ended", "session_id", id, "answered", len(m.sess.Answers))
	m.publishStateLocked()
	return nil
}

// StartRecording begins live transcription for the current question. The
// analysis engine is reset, so exactly one snapshot stream is live at a time.
// Recorder errors are non-fatal to the session; the caller may fall back to
// typed answers.
func (m *Machine) StartRecording(ctx context.Context) error {
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	if m.sess.State != types.StateActive {
		st := m.sess.State
		m.mu.Unlock()
		return fmt.Errorf("session: cannot record in state %s", st)
	}
	rec := m.recorder
	m.mu.Unlock()

	if rec == nil {
		return errors.New("session: no speech-to-text provider configured")
	}

	m.clearDraft()
	m.engine.Reset()
	err := rec.Start(ctx, transcript.Callbacks{
		OnSegment:    m.handleSegment,
		OnActivity:   m.handleActivity,
		OnFatalError: m.handleFatal,
	})
	if err != nil {
		return fmt.Errorf("session: start recording: %w", err)
	}
	return nil
}

// StopRecording stops live transcription. Idempotent; the draft transcript
// and snapshot are kept for submission.
func (m *Machine) StopRecording() {
	if m.recorder != nil {
		m.recorder.Stop()
	}
}

// SendAudio forwards an audio chunk to the live recorder, if any.
func (m *Machine) SendAudio(chunk []byte) {
	if m.recorder != nil {
		m.recorder.SendAudio(chunk)
	}
}

// Session returns a copy of the current session, or nil if none exists.
// Elapsed includes the running segment when active.
func (m *Machine) Session() *types.InterviewSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	cp := *m.sess
	cp.Answers = make(map[string]*types.Answer, len(m.sess.Answers))
	for k, v := range m.sess.Answers {
		cp.Answers[k] = v
	}
	if m.sess.State == types.StateActive && !m.segStart.IsZero() {
		cp.Elapsed += m.now().Sub(m.segStart)
	}
	return &cp
}

// State returns the current lifecycle state (idle when no session exists).
func (m *Machine) State() types.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// Draft returns the in-progress transcript text and latest analysis snapshot
// for the current question.
func (m *Machine) Draft() (string, *types.AnalysisSnapshot) {
	return m.draftState()
}

// adoptLocked takes ownership of a session payload from the collaborator,
// normalizing nil maps.
func (m *Machine) adoptLocked(sess *types.InterviewSession) {
	if sess.Answers == nil {
		sess.Answers = make(map[string]*types.Answer)
	}
	m.sess = sess
	m.segStart = time.Time{}
}

// completeLocked enters the terminal state and closes out the timer.
func (m *Machine) completeLocked(summary *types.PerformanceSummary, prior types.SessionState) {
	if prior == types.StateActive && !m.segStart.IsZero() {
		m.sess.Elapsed += m.now().Sub(m.segStart)
	}
	m.segStart = time.Time{}
	m.sess.State = types.StateCompleted
	m.sess.Performance = summary
}

func (m *Machine) stateLocked() types.SessionState {
	if m.sess == nil {
		return types.StateIdle
	}
	return m.sess.State
}

func (m *Machine) questionIndexLocked(questionID string) int {
	for i, q := range m.sess.Questions {
		if q.ID == questionID {
			return i
		}
	}
	return -1
}

func (m *Machine) publishStateLocked() {
	answered, total := 0, 0
	cursor := 0
	if m.sess != nil {
		answered, total = m.sess.Progress()
		cursor = m.sess.CurrentQuestion
	}
	m.events.publish(Event{
		Type:            EventState,
		State:           m.stateLocked(),
		CurrentQuestion: cursor,
		Answered:        answered,
		Total:           total,
	})
}

func (m *Machine) warn(msg string, err error) {
	m.log.Warn(msg, "error", err)
	m.events.publish(Event{Type: EventWarning, Message: msg + ": " + err.Error()})
}

// Recorder and engine callbacks. These run on recorder goroutines while the
// machine may be holding its own mutex inside Stop, so they only ever touch
// the draft lock and the event fanout.

func (m *Machine) handleSegment(seg transcript.Segment) {
	m.draft.mu.Lock()
	m.draft.text = seg.CumulativeText
	m.draft.interim = seg.InterimText
	m.draft.mu.Unlock()
	m.engine.Update(seg.CumulativeText, seg.InterimText)
	m.events.publish(Event{
		Type:       EventTranscript,
		Transcript: &TranscriptUpdate{Cumulative: seg.CumulativeText, Interim: seg.InterimText},
	})
}

func (m *Machine) handleActivity(ev types.ActivityEvent) {
	m.engine.HandleActivity(ev)
}

func (m *Machine) handleFatal(err error) {
	m.warn("transcription stopped", err)
}

func (m *Machine) handleSnapshot(snap types.AnalysisSnapshot) {
	// A throttled rebuild can race a submission: by the time the timer
	// fires the recorder is stopped and the draft cleared. Dropping the
	// snapshot here keeps a stale one from leaking into the next answer.
	if m.recorder == nil || !m.recorder.Recording() {
		return
	}
	m.draft.mu.Lock()
	m.draft.snapshot = &snap
	m.draft.mu.Unlock()
	m.events.publish(Event{Type: EventAnalysis, Analysis: &snap})
}

func (m *Machine) draftState() (string, *types.AnalysisSnapshot) {
	m.draft.mu.Lock()
	defer m.draft.mu.Unlock()
	return m.draft.text, m.draft.snapshot
}

func (m *Machine) clearDraft() {
	m.draft.mu.Lock()
	m.draft.text = ""
	m.draft.interim = ""
	m.draft.snapshot = nil
	m.draft.mu.Unlock()
}
