package license

import (
	"testing"

	"github.com/fpga-edge/drm-agent-go/internal/drmerr"
)

func TestInstallAdoptsSessionIDOnFirstLicense(t *testing.T) {
	d := &fakeDriver{}
	ctrl := newFacadeForTest(d)
	b := NewBuilder(ctrl, Header{DNA: "DEADBEEF"}, "metered", 125)

	resp := &Response{License: map[string]Entry{"DEADBEEF": {Key: "K1", LicenseTimer: "T1"}}}
	resp.Metering.SessionID = "S1"
	resp.Metering.TimeoutSecond = 30

	installed, err := Install(ctrl, "DEADBEEF", true, b, resp)
	if err != nil {
		t.Fatalf("Install(): %v", err)
	}
	if installed.SessionID != "S1" {
		t.Errorf("SessionID = %q, want S1", installed.SessionID)
	}
	if installed.LicenseDuration.Seconds() != 30 {
		t.Errorf("LicenseDuration = %v, want 30s", installed.LicenseDuration)
	}
	if b.SessionID() != "S1" {
		t.Errorf("builder SessionID = %q, want S1", b.SessionID())
	}
}

func TestInstallRejectsSessionIDMismatch(t *testing.T) {
	d := &fakeDriver{}
	ctrl := newFacadeForTest(d)
	b := NewBuilder(ctrl, Header{DNA: "DEADBEEF"}, "metered", 125)
	b.SetSessionID("S1")

	resp := &Response{License: map[string]Entry{"DEADBEEF": {Key: "K1", LicenseTimer: "T1"}}}
	resp.Metering.SessionID = "S2"
	resp.Metering.TimeoutSecond = 30

	_, err := Install(ctrl, "DEADBEEF", true, b, resp)
	if kind, ok := drmerr.KindOf(err); !ok || kind != drmerr.ControllerError {
		t.Fatalf("Install() kind = %v, want ControllerError", kind)
	}
}

func TestInstallRejectsMissingLicenseEntry(t *testing.T) {
	d := &fakeDriver{}
	ctrl := newFacadeForTest(d)
	b := NewBuilder(ctrl, Header{DNA: "DEADBEEF"}, "metered", 125)

	resp := &Response{License: map[string]Entry{"OTHERDEVICE": {Key: "K1"}}}
	resp.Metering.SessionID = "S1"

	_, err := Install(ctrl, "DEADBEEF", true, b, resp)
	if kind, ok := drmerr.KindOf(err); !ok || kind != drmerr.WebServiceResponseError {
		t.Fatalf("Install() kind = %v, want WebServiceResponseError", kind)
	}
}

func TestInstallNodeLockedSkipsTimer(t *testing.T) {
	d := &fakeDriver{statusMetered: boolPtr(false), statusNodeLocked: boolPtr(true)}
	ctrl := newFacadeForTest(d)
	b := NewBuilder(ctrl, Header{DNA: "DEADBEEF"}, "nodelocked", 0)

	resp := &Response{License: map[string]Entry{"DEADBEEF": {Key: "K1"}}}
	resp.Metering.SessionID = "S1"

	installed, err := Install(ctrl, "DEADBEEF", false, b, resp)
	if err != nil {
		t.Fatalf("Install(): %v", err)
	}
	if installed.LicenseDuration != 0 {
		t.Errorf("LicenseDuration = %v, want 0 for node-locked", installed.LicenseDuration)
	}
}

func TestInstallRejectsMissingTimeoutForMetered(t *testing.T) {
	d := &fakeDriver{}
	ctrl := newFacadeForTest(d)
	b := NewBuilder(ctrl, Header{DNA: "DEADBEEF"}, "metered", 125)

	resp := &Response{License: map[string]Entry{"DEADBEEF": {Key: "K1", LicenseTimer: "T1"}}}
	resp.Metering.SessionID = "S1"

	_, err := Install(ctrl, "DEADBEEF", true, b, resp)
	if kind, ok := drmerr.KindOf(err); !ok || kind != drmerr.WebServiceResponseError {
		t.Fatalf("Install() kind = %v, want WebServiceResponseError", kind)
	}
}

func boolPtr(v bool) *bool { return &v }

func TestInstallRejectsBothMeteredAndNodeLockedBitsSet(t *testing.T) {
	d := &fakeDriver{statusMetered: boolPtr(true), statusNodeLocked: boolPtr(true)}
	ctrl := newFacadeForTest(d)
	b := NewBuilder(ctrl, Header{DNA: "DEADBEEF"}, "metered", 125)

	resp := &Response{License: map[string]Entry{"DEADBEEF": {Key: "K1", LicenseTimer: "T1"}}}
	resp.Metering.SessionID = "S1"
	resp.Metering.TimeoutSecond = 30

	_, err := Install(ctrl, "DEADBEEF", true, b, resp)
	if kind, ok := drmerr.KindOf(err); !ok || kind != drmerr.ControllerError {
		t.Fatalf("Install() kind = %v, want ControllerError", kind)
	}
}

func TestInstallRejectsModeMismatch(t *testing.T) {
	d := &fakeDriver{statusMetered: boolPtr(false), statusNodeLocked: boolPtr(true)}
	ctrl := newFacadeForTest(d)
	b := NewBuilder(ctrl, Header{DNA: "DEADBEEF"}, "metered", 125)

	resp := &Response{License: map[string]Entry{"DEADBEEF": {Key: "K1", LicenseTimer: "T1"}}}
	resp.Metering.SessionID = "S1"
	resp.Metering.TimeoutSecond = 30

	_, err := Install(ctrl, "DEADBEEF", true, b, resp)
	if kind, ok := drmerr.KindOf(err); !ok || kind != drmerr.ControllerError {
		t.Fatalf("Install() kind = %v, want ControllerError (controller reports node-locked but configured mode is metered)", kind)
	}
}
