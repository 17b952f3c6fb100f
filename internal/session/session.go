// Package session implements the licensing session state machine
// (component F), the background worker that keeps a metered session
// alive (component G), and the node-locked offline path (component
// H) — spec §4.F/§4.G/§4.H.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fpga-edge/drm-agent-go/internal/controller"
	"github.com/fpga-edge/drm-agent-go/internal/drmerr"
	"github.com/fpga-edge/drm-agent-go/internal/license"
	"github.com/fpga-edge/drm-agent-go/internal/retry"
	"github.com/fpga-edge/drm-agent-go/internal/wsclient"
)

// State is one node of the licensing session state machine (spec §4.F).
type State int

const (
	Idle State = iota
	Starting
	Running
	Stopping
	Stopped
	Paused
	NodeLockedReady
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	case Stopped:
		return "Stopped"
	case Paused:
		return "Paused"
	case NodeLockedReady:
		return "NodeLockedReady"
	default:
		return "Unknown"
	}
}

// EventKind names a lifecycle event published through an optional
// event sink (e.g. internal/events' NATS publisher).
type EventKind string

const (
	EventLicenseInstalled EventKind = "license_installed"
	EventSessionStarted   EventKind = "session_started"
	EventSessionStopped   EventKind = "session_stopped"
	EventSessionPaused    EventKind = "session_paused"
	EventWorkerError      EventKind = "worker_error"
)

// Event is published best-effort on every state transition and every
// successful license install; nothing in the session depends on
// delivery succeeding.
type Event struct {
	Kind      EventKind
	SessionID string
	State     State
}

// Options configures a new Session. NodeLocked and FrequencyMHz are
// mutually exclusive in effect: FrequencyMHz is only consulted for
// metered sessions.
type Options struct {
	NodeLocked       bool
	NodeLockDir      string
	FrequencyMHz     int
	RetryPeriods     retry.Periods
	RequestTimeout   time.Duration
	FreqDetectPeriod time.Duration
	FreqDetectThresh float64
	Header           license.Header
	OnAsyncError     func(error)
	OnEvent          func(Event)
	Log              zerolog.Logger
}

// Session owns the controller façade, the web client, and the request
// builder for exactly one FPGA design, and drives them through the
// state machine described by spec §4.F.
//
// Activate, Deactivate, and Close are not safe to call concurrently
// with each other — exactly like the original, the session's
// lifecycle is owned by a single control thread. mu guards only the
// small set of fields the background worker touches concurrently with
// that control thread (state, securityStop, licenseDuration, and the
// worker's own cancellation handle).
type Session struct {
	mu    sync.Mutex
	state State

	ctrl    *controller.Facade
	ws      *wsclient.Client
	builder *license.Builder

	nodeLocked       bool
	nodeLockDir      string
	frequencyMHz     int
	retryPeriods     retry.Periods
	requestTimeout   time.Duration
	freqDetectPeriod time.Duration
	freqDetectThresh float64

	dna                 string
	licenseDuration     time.Duration
	securityStop        bool
	currentFrequencyMHz int

	cancelWorker context.CancelFunc
	workerGroup  *errgroup.Group

	onAsyncError func(error)
	onEvent      func(Event)
	log          zerolog.Logger
}

// New constructs a Session. It does not touch the controller — call
// Activate to bring it into Running/NodeLockedReady.
func New(ctrl *controller.Facade, ws *wsclient.Client, dna string, opts Options) *Session {
	mode := "metered"
	if opts.NodeLocked {
		mode = "nodelocked"
	}
	builder := license.NewBuilder(ctrl, opts.Header, mode, opts.FrequencyMHz)
	onAsyncError := opts.OnAsyncError
	if onAsyncError == nil {
		onAsyncError = func(error) {}
	}
	onEvent := opts.OnEvent
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	return &Session{
		state:            Idle,
		ctrl:             ctrl,
		ws:               ws,
		builder:          builder,
		nodeLocked:       opts.NodeLocked,
		nodeLockDir:      opts.NodeLockDir,
		frequencyMHz:     opts.FrequencyMHz,
		retryPeriods:     opts.RetryPeriods,
		requestTimeout:   opts.RequestTimeout,
		freqDetectPeriod: opts.FreqDetectPeriod,
		freqDetectThresh: opts.FreqDetectThresh,
		dna:                 dna,
		currentFrequencyMHz: opts.FrequencyMHz,
		onAsyncError:        onAsyncError,
		onEvent:             onEvent,
		log:                 opts.Log,
	}
}

// CurrentFrequencyMHz returns the configured frequency, or the last
// auto-detection measurement if one has run — the "current frequency"
// entry of the parameter surface (spec §6; scenario 6 of spec §8
// requires this to reflect the measured value even when the mismatch
// is rejected as BadFrequency).
func (s *Session) CurrentFrequencyMHz() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentFrequencyMHz
}

func (s *Session) setCurrentFrequencyMHz(v int) {
	s.mu.Lock()
	s.currentFrequencyMHz = v
	s.mu.Unlock()
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(v State) {
	s.mu.Lock()
	s.state = v
	s.mu.Unlock()
}

// SessionID returns the session id adopted from the most recent open
// response, or empty if no session is active.
func (s *Session) SessionID() string { return s.builder.SessionID() }

// LicenseDuration returns the duration granted by the most recently
// installed license. Zero for node-locked sessions.
func (s *Session) LicenseDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.licenseDuration
}

func (s *Session) setLicenseDuration(d time.Duration) {
	s.mu.Lock()
	s.licenseDuration = d
	s.mu.Unlock()
}

// Activate brings the session from Idle/Paused/Running into
// Running/NodeLockedReady. resumeSessionRequest asks the engine to
// continue an existing controller session (spec §4.F, "resume_session
// re-synchronizes") rather than starting a fresh one.
func (s *Session) Activate(ctx context.Context, resumeSessionRequest bool) error {
	if s.nodeLocked {
		return s.activateNodeLocked(ctx)
	}

	nodeLocked, err := s.ctrl.StatusIsNodeLocked()
	if err != nil {
		return err
	}
	if nodeLocked {
		return drmerr.New(drmerr.BadUsage, "controller is programmed for node-locked licensing but configuration requests metered")
	}

	s.mu.Lock()
	s.securityStop = true
	running := s.state == Running || s.state == Paused
	s.mu.Unlock()

	if running && resumeSessionRequest {
		return s.resume(ctx)
	}
	if running && !resumeSessionRequest {
		_ = s.Deactivate(ctx, false) // best-effort; original swallows errors on this restart path too
	}
	return s.start(ctx)
}

func (s *Session) start(ctx context.Context) error {
	s.setState(Starting)
	req, err := s.builder.Open()
	if err != nil {
		s.setState(Idle)
		return err
	}
	if err := s.fetchAndInstall(ctx, req, time.Now().Add(s.requestTimeout)); err != nil {
		s.setState(Idle)
		return err
	}
	s.spawnWorker()
	s.setState(Running)
	s.onEvent(Event{Kind: EventSessionStarted, SessionID: s.builder.SessionID(), State: Running})
	return nil
}

func (s *Session) resume(ctx context.Context) error {
	sessionRunning, err := s.ctrl.StatusSessionRunning()
	if err != nil {
		return err
	}
	if sessionRunning {
		ready, err := s.readyForNewLicense()
		if err != nil {
			return err
		}
		if ready {
			req, err := s.builder.Running()
			if err != nil {
				return err
			}
			if err := s.fetchAndInstall(ctx, req, time.Now().Add(s.requestTimeout)); err != nil {
				return err
			}
		}
	}
	s.spawnWorker()
	s.setState(Running)
	s.onEvent(Event{Kind: EventSessionStarted, SessionID: s.builder.SessionID(), State: Running})
	return nil
}

// Deactivate brings the session from Running to Stopped (pause=false)
// or Paused (pause=true). Both paths stop the background worker and
// join it before touching the network or clearing session state, so
// no worker iteration races the deactivation. Pausing is local-only: it
// sends nothing to the web service, clears the security-stop flag,
// keeps the session id, and moves to Paused.
func (s *Session) Deactivate(ctx context.Context, pause bool) error {
	if s.nodeLocked {
		return nil
	}

	current := s.State()
	if current != Running && current != Paused {
		return nil
	}

	s.haltWorker()

	if pause {
		s.mu.Lock()
		s.securityStop = false
		s.state = Paused
		s.mu.Unlock()
		s.onEvent(Event{Kind: EventSessionPaused, SessionID: s.builder.SessionID(), State: Paused})
		return nil
	}

	s.setState(Stopping)
	req, err := s.builder.Close()
	if err == nil {
		deadline := time.Now().Add(s.requestTimeout)
		_, err = s.fetchLicense(ctx, req, deadline)
	}
	s.builder.ClearSessionID()
	s.setState(Stopped)
	s.onEvent(Event{Kind: EventSessionStopped, State: Stopped})
	return err
}

// Close releases the session. If the security-stop flag is set and
// the controller still reports a running session, it performs a
// synchronous stop first — the original's destructor-driven safety
// net (spec §5, "Destructor-driven safety stop").
func (s *Session) Close(ctx context.Context) error {
	if s.nodeLocked {
		return nil
	}

	s.mu.Lock()
	securityStop := s.securityStop
	s.mu.Unlock()

	if securityStop {
		if running, err := s.ctrl.StatusSessionRunning(); err == nil && running {
			_ = s.Deactivate(ctx, false)
		}
	}
	s.haltWorker()
	return s.ctrl.ReleaseInstanceLock()
}

// readyForNewLicense reports whether the slot for the next license is
// free — spec §4.G's worker condition and also used when resuming a
// paused session.
func (s *Session) readyForNewLicense() (bool, error) {
	loaded, err := s.ctrl.StatusTimerLoaded()
	if err != nil {
		return false, err
	}
	return !loaded, nil
}

// fetchAndInstall runs one full request/response/install cycle and
// folds the result into the session's in-memory state.
func (s *Session) fetchAndInstall(ctx context.Context, req *license.Request, deadline time.Time) error {
	resp, err := s.fetchLicense(ctx, req, deadline)
	if err != nil {
		return err
	}
	installed, err := license.Install(s.ctrl, s.dna, !s.nodeLocked, s.builder, resp)
	if err != nil {
		return err
	}
	s.setLicenseDuration(installed.LicenseDuration)
	s.onEvent(Event{Kind: EventLicenseInstalled, SessionID: installed.SessionID, State: s.State()})
	return nil
}

// fetchLicense runs the two-phase (authenticate, then request) web
// service round trip under one shared deadline, retrying transient
// failures per s.retryPeriods (spec §4.E, grounded in the original's
// getLicense).
func (s *Session) fetchLicense(ctx context.Context, req *license.Request, deadline time.Time) (*license.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, drmerr.Wrap(drmerr.BadFormat, err, "marshal license request")
	}

	correlationID := uuid.New().String()
	s.log.Debug().Str("correlation_id", correlationID).Str("phase", string(req.Request)).Msg("sending license request")

	var body []byte
	err = retry.Do(ctx, s.log, s.retryPeriods, deadline, func() error {
		if err := s.ws.Authenticate(ctx); err != nil {
			return err
		}
		b, err := s.ws.RequestLicense(ctx, payload)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	var resp license.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, drmerr.Wrap(drmerr.WebServiceResponseError, err, "decode license response")
	}
	return &resp, nil
}
