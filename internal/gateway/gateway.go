// Package gateway exposes the interview session machine over a WebSocket
// endpoint.
//
// Clients connect to /ws and drive the session with JSON text frames (one
// command per frame); binary frames carry raw audio for the live
// transcription stream. The server pushes session events (state changes,
// transcript segments, analysis snapshots, warnings) to every connected
// client as they happen.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/intervoxa/internal/observe"
	"github.com/MrWong99/intervoxa/internal/session"
	"github.com/MrWong99/intervoxa/pkg/types"
)

// writeTimeout bounds a single frame write to a client.
const writeTimeout = 10 * time.Second

// outBuffer bounds the per-connection outbound queue. A client that cannot
// drain it is disconnected rather than allowed to stall the fanout.
const outBuffer = 128

// Config configures a gateway [Server].
type Config struct {
	// Machine is the session state machine all clients share. Required.
	Machine *session.Machine

	// Metrics receives connection and event counters. Optional.
	Metrics *observe.Metrics

	// Log is the structured logger. Defaults to slog.Default().
	Log *slog.Logger
}

// Server accepts WebSocket clients and bridges them to the session machine.
type Server struct {
	machine *session.Machine
	metrics *observe.Metrics
	log     *slog.Logger
}

// New creates a gateway Server.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		machine: cfg.Machine,
		metrics: cfg.Metrics,
		log:     log,
	}
}

// Register adds the /ws route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
}

// Run subscribes to the session machine and records event metrics until ctx
// is done. It always returns ctx.Err(). Run this once per process; the
// per-client subscriptions do not record metrics so events are not counted
// per connection.
func (s *Server) Run(ctx context.Context) error {
	if s.metrics == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	events, cancel := s.machine.Subscribe()
	defer cancel()

	// live mirrors whether an attempt is in progress; transient loading
	// states between external calls do not move the gauge.
	live := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			switch ev.Type {
			case session.EventState:
				s.metrics.RecordTransition(ctx, string(ev.State))
				switch ev.State {
				case types.StateActive, types.StatePaused:
					if !live {
						s.metrics.ActiveSessions.Add(ctx, 1)
						live = true
					}
				case types.StateIdle, types.StateCompleted:
					if live {
						s.metrics.ActiveSessions.Add(ctx, -1)
						live = false
					}
				}
			case session.EventTranscript:
				kind := "final"
				if ev.Transcript != nil && ev.Transcript.Interim != "" {
					kind = "interim"
				}
				s.metrics.RecordSegment(ctx, kind)
			case session.EventAnalysis:
				s.metrics.AnalysisSnapshots.Add(ctx, 1)
			}
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection torn down")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if s.metrics != nil {
		s.metrics.ConnectedClients.Add(ctx, 1)
		defer s.metrics.ConnectedClients.Add(context.WithoutCancel(ctx), -1)
	}
	s.log.Info("client connected", "remote", r.RemoteAddr)

	c := &client{
		server: s,
		conn:   conn,
		out:    make(chan reply, outBuffer),
	}

	events, unsubscribe := s.machine.Subscribe()
	defer unsubscribe()

	go c.forwardEvents(ctx, events)
	go c.writeLoop(ctx, cancel)

	c.readLoop(ctx)
	s.log.Info("client disconnected", "remote", r.RemoteAddr)
}

// client is the per-connection state: one reader, one writer, one event
// forwarder. All outbound frames funnel through the out channel so writes
// stay serialized.
type client struct {
	server *Server
	conn   *websocket.Conn
	out    chan reply
}

func (c *client) forwardEvents(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			c.send(ctx, reply{Type: msgEvent, Event: &ev})
		}
	}
}

func (c *client) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.out:
			data, err := json.Marshal(msg)
			if err != nil {
				c.server.log.Error("marshal outbound frame", "err", err)
				continue
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err = c.conn.Write(wctx, websocket.MessageText, data)
			wcancel()
			if err != nil {
				return
			}
		}
	}
}

func (c *client) readLoop(ctx context.Context) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		switch typ {
		case websocket.MessageBinary:
			c.server.machine.SendAudio(data)
		case websocket.MessageText:
			c.handleCommand(ctx, data)
		}
	}
}

func (c *client) handleCommand(ctx context.Context, data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.send(ctx, reply{Type: msgError, Error: fmt.Sprintf("malformed command: %v", err)})
		return
	}

	res := c.dispatch(ctx, cmd)
	res.Op = cmd.Op
	res.ID = cmd.ID
	c.send(ctx, res)
}

func (c *client) dispatch(ctx context.Context, cmd command) reply {
	m := c.server.machine

	var err error
	switch cmd.Op {
	case opCreate:
		if cmd.Config == nil {
			return errorReply(errors.New("create requires a config object"))
		}
		err = m.Create(ctx, *cmd.Config)
	case opLoad:
		err = m.Load(ctx, cmd.SessionID)
	case opStart:
		err = m.Start(ctx)
	case opSubmitAnswer:
		err = m.SubmitAnswer(ctx, cmd.QuestionID, cmd.Text, nil, cmd.Media)
	case opPause:
		err = m.Pause(ctx)
	case opResume:
		err = m.Resume(ctx)
	case opEnd:
		err = m.End(ctx)
	case opStartRecording:
		err = m.StartRecording(ctx)
	case opStopRecording:
		m.StopRecording()
	case opSession:
		return reply{Type: msgAck, Session: m.Session()}
	default:
		return errorReply(fmt.Errorf("unknown op %q", cmd.Op))
	}

	if err != nil {
		return errorReply(err)
	}
	return reply{Type: msgAck, Session: m.Session()}
}

func (c *client) send(ctx context.Context, msg reply) {
	select {
	case c.out <- msg:
	case <-ctx.Done():
	default:
		// Queue full. The write loop is wedged or the client cannot keep
		// up; drop the frame and let the read loop notice the dead peer.
		c.server.log.Warn("dropping frame for slow client")
	}
}

func errorReply(err error) reply {
	return reply{Type: msgError, Error: err.Error()}
}

// ── Wire protocol ─────────────────────────────────────────────────────────────

// Command ops accepted from clients.
const (
	opCreate         = "create"
	opLoad           = "load"
	opStart          = "start"
	opSubmitAnswer   = "submit_answer"
	opPause          = "pause"
	opResume         = "resume"
	opEnd            = "end"
	opStartRecording = "start_recording"
	opStopRecording  = "stop_recording"
	opSession        = "session"
)

// Reply types sent to clients.
const (
	msgAck   = "ack"
	msgError = "error"
	msgEvent = "event"
)

// command is one inbound JSON frame. Op selects the operation; the remaining
// fields are op-specific.
type command struct {
	Op string `json:"op"`

	// ID is an optional client-chosen correlation ID echoed in the reply.
	ID string `json:"id,omitempty"`

	// Config is required for the create op.
	Config *types.InterviewConfig `json:"config,omitempty"`

	// SessionID is required for the load op.
	SessionID string `json:"session_id,omitempty"`

	// QuestionID and Text are used by submit_answer. Empty Text submits
	// the live transcript draft instead.
	QuestionID string           `json:"question_id,omitempty"`
	Text       string           `json:"text,omitempty"`
	Media      *types.MediaRefs `json:"media,omitempty"`
}

// reply is one outbound JSON frame: an ack or error correlated to a command,
// or an unsolicited session event.
type reply struct {
	Type string `json:"type"`

	Op    string `json:"op,omitempty"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`

	// Session is the post-command snapshot, set on acks.
	Session *types.InterviewSession `json:"session,omitempty"`

	// Event is set for unsolicited pushes.
	Event *session.Event `json:"event,omitempty"`
}
