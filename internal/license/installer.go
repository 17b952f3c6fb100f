package license

import (
	"time"

	"github.com/fpga-edge/drm-agent-go/internal/controller"
	"github.com/fpga-edge/drm-agent-go/internal/drmerr"
)

// Installed summarizes what the just-installed response changed, for
// the session engine to fold into its own state.
type Installed struct {
	SessionID       string
	LicenseDuration time.Duration
}

// Install validates and installs a license response (spec §4.D):
// adopts or verifies the session id, activates the per-DNA key on the
// controller, and for metered licensing loads the duration timer.
// builder's session id is updated as a side effect so the next
// request phase carries it forward.
func Install(ctrl *controller.Facade, dna string, metered bool, builder *Builder, resp *Response) (Installed, error) {
	if resp.Metering.SessionID == "" {
		return Installed{}, drmerr.New(drmerr.WebServiceResponseError, "license response missing metering.sessionId")
	}
	if existing := builder.SessionID(); existing == "" {
		builder.SetSessionID(resp.Metering.SessionID)
	} else if existing != resp.Metering.SessionID {
		return Installed{}, drmerr.New(drmerr.ControllerError,
			"license response session id %q does not match in-memory session id %q", resp.Metering.SessionID, existing)
	}

	entry, ok := resp.License[dna]
	if !ok || entry.Key == "" {
		return Installed{}, drmerr.New(drmerr.WebServiceResponseError, "license response missing license for DNA %q", dna)
	}
	activated, activationErrorCode, err := ctrl.Activate(entry.Key)
	if err != nil {
		return Installed{}, err
	}
	if !activated || activationErrorCode != 0 {
		return Installed{}, drmerr.New(drmerr.ControllerError, "controller rejected activation, errorCode=%d", activationErrorCode)
	}

	installed := Installed{SessionID: resp.Metering.SessionID}
	if !metered {
		if err := verifyMode(ctrl, metered); err != nil {
			return Installed{}, err
		}
		return installed, nil
	}

	if entry.LicenseTimer == "" {
		return Installed{}, drmerr.New(drmerr.WebServiceResponseError, "license response missing licenseTimer for metered license")
	}
	if resp.Metering.TimeoutSecond <= 0 {
		return Installed{}, drmerr.New(drmerr.WebServiceResponseError, "license response missing metering.timeoutSecond for metered license")
	}
	enabled, err := ctrl.LoadTimer(entry.LicenseTimer)
	if err != nil {
		return Installed{}, err
	}
	if !enabled {
		return Installed{}, drmerr.New(drmerr.ControllerError, "controller did not enable license timer after load")
	}
	installed.LicenseDuration = time.Duration(resp.Metering.TimeoutSecond) * time.Second
	if err := verifyMode(ctrl, metered); err != nil {
		return Installed{}, err
	}
	return installed, nil
}

// verifyMode checks that the controller's is_metered/is_nodelocked
// status bits are mutually exclusive and match the configured mode,
// the last of the installer's steps (spec §4.D step 4).
func verifyMode(ctrl *controller.Facade, metered bool) error {
	isMetered, err := ctrl.StatusIsMetered()
	if err != nil {
		return err
	}
	isNodeLocked, err := ctrl.StatusIsNodeLocked()
	if err != nil {
		return err
	}
	if isMetered == isNodeLocked {
		return drmerr.New(drmerr.ControllerError, "controller status is_metered=%t and is_nodelocked=%t are not mutually exclusive", isMetered, isNodeLocked)
	}
	if isMetered != metered {
		return drmerr.New(drmerr.ControllerError, "controller status metered=%t does not match configured mode metered=%t", isMetered, metered)
	}
	return nil
}
