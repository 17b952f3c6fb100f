package drmagent

import (
	"github.com/fpga-edge/drm-agent-go/internal/drmerr"
)

// ParameterKey names one entry of the read-only parameter surface
// (spec §6, "the engine exposes..."). The surface is explicitly out of
// core scope for the state machine itself, but every value it reports
// is already tracked somewhere in the agent — Get just collects it.
type ParameterKey string

const (
	ParamSessionID         ParameterKey = "session_id"
	ParamLicenseType       ParameterKey = "license_type"
	ParamCurrentFrequency  ParameterKey = "current_frequency"
	ParamLicenseDuration   ParameterKey = "license_duration"
	ParamActivatorCount    ParameterKey = "activator_count"
	ParamSessionRunning    ParameterKey = "session_running"
	ParamLicenseRunning    ParameterKey = "license_running"
	ParamMeteringCounter   ParameterKey = "metering_counter"
	ParamTokenState        ParameterKey = "token_state"
)

// Get reads one parameter of the surface. Every value it returns
// reflects the live controller/session state, not a cached snapshot —
// it is safe to poll.
func (a *Agent) Get(key ParameterKey) (any, error) {
	switch key {
	case ParamSessionID:
		return a.session.SessionID(), nil
	case ParamLicenseType:
		if a.nodeLocked {
			return "nodelocked", nil
		}
		return "metered", nil
	case ParamCurrentFrequency:
		return a.session.CurrentFrequencyMHz(), nil
	case ParamLicenseDuration:
		return a.session.LicenseDuration(), nil
	case ParamActivatorCount:
		return a.ctrl.NumActivators()
	case ParamSessionRunning:
		return a.ctrl.StatusSessionRunning()
	case ParamLicenseRunning:
		return a.ctrl.StatusTimerLoaded()
	case ParamMeteringCounter:
		return a.ctrl.SampleTimerCounter()
	case ParamTokenState:
		return a.ws.TokenState(), nil
	default:
		return nil, drmerr.New(drmerr.BadArgument, "unknown parameter key %q", key)
	}
}

// GetMailboxUserWord and SetMailboxUserWord expose the mailbox user
// area (spec §4.B, §6 "mailbox user slots") indexed from zero.
func (a *Agent) GetMailboxUserWord(index int) (uint32, error) {
	return a.ctrl.ReadUserWord(index)
}

func (a *Agent) SetMailboxUserWord(index int, value uint32) error {
	return a.ctrl.WriteUserWord(index, value)
}
