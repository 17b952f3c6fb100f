package license

import (
	"strings"

	"github.com/fpga-edge/drm-agent-go/internal/controller"
	"github.com/fpga-edge/drm-agent-go/internal/drmerr"
)

// Builder produces the three request phases for one session,
// composing the static header with a freshly extracted controller
// challenge each time (spec §4.C).
type Builder struct {
	ctrl      *controller.Facade
	header    Header
	mode      string
	frequency int
	sessionID string
}

// NewBuilder constructs a Builder. mode is "metered" or "nodelocked";
// frequency is ignored for node-locked builders.
func NewBuilder(ctrl *controller.Facade, header Header, mode string, frequencyMHz int) *Builder {
	return &Builder{ctrl: ctrl, header: header, mode: mode, frequency: frequencyMHz}
}

// SessionID returns the session id adopted from the open response, or
// empty if no session has been opened yet.
func (b *Builder) SessionID() string { return b.sessionID }

// SetSessionID adopts a session id, either from a freshly installed
// open response or when resuming a paused session.
func (b *Builder) SetSessionID(id string) { b.sessionID = id }

// ClearSessionID drops the in-memory session id after a close request
// has been sent.
func (b *Builder) ClearSessionID() { b.sessionID = "" }

// Open builds the first request of a session. It resets the
// controller's license counter via initialization() and carries no
// session id — one is adopted from the response.
func (b *Builder) Open() (*Request, error) {
	m, err := b.ctrl.Initialization()
	if err != nil {
		return nil, err
	}
	req := b.base(m, PhaseOpen)
	h := b.header
	h.Mode = b.mode
	h.DRMFrequencyInit = b.frequency
	req.Header = &h
	return req, nil
}

// Running builds a mid-session request, quiescing the controller's
// metering clock to extract the challenge. The session id recovered
// from the controller's metering blob is attached to the request and
// must match the in-memory one, if any.
func (b *Builder) Running() (*Request, error) {
	m, err := b.ctrl.SyncExtractMetering()
	if err != nil {
		return nil, err
	}
	return b.sessionScoped(m, PhaseRunning)
}

// Close builds the final request of a session, ending the controller's
// metering session as part of extracting the challenge.
func (b *Builder) Close() (*Request, error) {
	m, err := b.ctrl.EndSessionAndExtractMetering()
	if err != nil {
		return nil, err
	}
	return b.sessionScoped(m, PhaseClose)
}

func (b *Builder) sessionScoped(m controller.Metering, phase Phase) (*Request, error) {
	sid := sessionIDFromMetering(m.MeteringFile)
	if b.sessionID != "" && sid != b.sessionID {
		return nil, drmerr.New(drmerr.ControllerError, "controller session id %q does not match in-memory session id %q", sid, b.sessionID)
	}
	req := b.base(m, phase)
	req.SessionID = sid
	return req, nil
}

func (b *Builder) base(m controller.Metering, phase Phase) *Request {
	h := b.header
	h.Mode = b.mode
	h.DRMFrequencyInit = b.frequency
	req := &Request{
		Header:        &h,
		SaaSChallenge: m.SaaSChallenge,
		MeteringFile:  concatMeteringFile(m.MeteringFile),
		Request:       phase,
		Mode:          b.mode,
	}
	if b.mode == "metered" {
		req.DRMFrequency = b.frequency
	}
	return req
}

// concatMeteringFile joins the controller's three-string metering blob
// into the single string the wire payload carries (spec §4.C), the
// same concatenation the original performs with
// std::accumulate(meteringFile.begin(), meteringFile.end(), "").
func concatMeteringFile(metering [3]string) string {
	return strings.Join(metering[:], "")
}

// sessionIDFromMetering recovers the session id embedded by the
// controller as the first 16 hex characters of the metering blob's
// first string (spec §4.C, running/close).
func sessionIDFromMetering(metering [3]string) string {
	s := metering[0]
	if len(s) > 16 {
		return s[:16]
	}
	return s
}
