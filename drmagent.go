// Package drmagent is the public façade of the DRM client agent: a
// thin handle over the Session Engine (internal/session), following
// Design Note "Pimpl / hidden-state wrapper" — no indirection beyond
// what Go already gives a struct holding unexported fields.
package drmagent

import (
	"context"
	"fmt"

	"github.com/fpga-edge/drm-agent-go/internal/controller"
	"github.com/fpga-edge/drm-agent-go/internal/session"
	"github.com/fpga-edge/drm-agent-go/internal/wsclient"
)

// Agent owns one FPGA design's licensing lifecycle end to end: the
// controller façade, the web client, and the session state machine
// built on top of them.
type Agent struct {
	ctrl       *controller.Facade
	ws         *wsclient.Client
	session    *session.Session
	nodeLocked bool
}

// New builds an Agent around an already-constructed controller façade
// and web client, running the HDK compatibility check (spec §4.A)
// before anything else. The caller selects metered vs node-locked,
// and every other tunable, via opts — the same Options the Session
// Engine itself takes, since the Agent adds no state of its own.
func New(ctrl *controller.Facade, ws *wsclient.Client, opts session.Options) (*Agent, error) {
	if err := ctrl.Init(); err != nil {
		return nil, err
	}
	dna, err := ctrl.ExtractDNA()
	if err != nil {
		return nil, err
	}
	vlnvs, err := ctrl.ExtractVLNVs()
	if err != nil {
		return nil, err
	}
	if err := ctrl.AcquireInstanceLock(); err != nil {
		return nil, err
	}
	opts.Header.DNA = dna
	opts.Header.VLNVFile = vlnvs
	return &Agent{
		ctrl:       ctrl,
		ws:         ws,
		session:    session.New(ctrl, ws, dna, opts),
		nodeLocked: opts.NodeLocked,
	}, nil
}

// Activate brings the session into Running (metered) or
// NodeLockedReady. resumeSessionRequest asks the engine to
// re-synchronize an existing controller session instead of starting a
// fresh one; ignored for node-locked designs.
//
// Activate, Deactivate, and Close are not safe to call concurrently
// with each other, or with themselves — see internal/session.Session's
// doc comment for the full concurrency contract this wraps.
func (a *Agent) Activate(ctx context.Context, resumeSessionRequest bool) error {
	return a.session.Activate(ctx, resumeSessionRequest)
}

// Deactivate stops (pause=false) or pauses (pause=true) a running
// session.
func (a *Agent) Deactivate(ctx context.Context, pause bool) error {
	return a.session.Deactivate(ctx, pause)
}

// Close releases the Agent: best-effort synchronous stop if the
// security-stop flag is set and the controller still reports a
// running session, then joins the background worker and releases the
// instance lock.
func (a *Agent) Close(ctx context.Context) error {
	return a.session.Close(ctx)
}

// State returns the session's current lifecycle state.
func (a *Agent) State() session.State {
	return a.session.State()
}

// DumpControllerReport renders a plain-text diagnostic snapshot of the
// controller's identity and status bits — not gated by session state,
// grounded in the original's getDrmPage/getDrmReport (SPEC_FULL
// "Design/HW register dump").
func (a *Agent) DumpControllerReport() (string, error) {
	version, err := a.ctrl.ExtractVersion()
	if err != nil {
		return "", err
	}
	dna, err := a.ctrl.ExtractDNA()
	if err != nil {
		return "", err
	}
	numActivators, err := a.ctrl.NumActivators()
	if err != nil {
		return "", err
	}
	running, err := a.ctrl.StatusSessionRunning()
	if err != nil {
		return "", err
	}
	metered, err := a.ctrl.StatusIsMetered()
	if err != nil {
		return "", err
	}
	nodeLocked, err := a.ctrl.StatusIsNodeLocked()
	if err != nil {
		return "", err
	}
	timerLoaded, err := a.ctrl.StatusTimerLoaded()
	if err != nil {
		return "", err
	}
	timerEmpty, err := a.ctrl.StatusTimerEmpty()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"controller version: %s\n"+
			"DNA: %s\n"+
			"activators: %d\n"+
			"session running: %t\n"+
			"metered: %t\n"+
			"node-locked: %t\n"+
			"timer loaded: %t\n"+
			"timer empty: %t\n",
		version, dna, numActivators, running, metered, nodeLocked, timerLoaded, timerEmpty,
	), nil
}
