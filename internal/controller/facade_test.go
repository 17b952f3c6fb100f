package controller

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/fpga-edge/drm-agent-go/internal/drmerr"
)

// fakeDriver is a minimal in-memory Driver used to exercise the
// Facade without going through the register-bus encoding.
type fakeDriver struct {
	version        string
	dna            string
	vlnvs          []string
	ro, rw         []uint32
	metering       [3]string
	numIPs         uint32
	activationCode uint8
	timerEnabled   bool
	bits           uint32
	numActivatorsN uint32

	lastActivateKey string
	lastTimer       string
	lastOp          string
}

func (d *fakeDriver) ExtractVersion() (string, error) { return d.version, nil }
func (d *fakeDriver) ExtractDNA() (string, error)     { return d.dna, nil }
func (d *fakeDriver) ExtractVLNVs() ([]string, error) { return d.vlnvs, nil }

func (d *fakeDriver) ReadMailbox() ([]uint32, []uint32, error) {
	return append([]uint32{}, d.ro...), append([]uint32{}, d.rw...), nil
}

func (d *fakeDriver) WriteMailbox(rw []uint32) error {
	d.rw = append([]uint32{}, rw...)
	return nil
}

func (d *fakeDriver) Initialization() (uint32, string, [3]string, error) {
	d.lastOp = "initialization"
	return d.numIPs, "saas-challenge", d.metering, nil
}

func (d *fakeDriver) AsyncExtractMetering() (uint32, string, [3]string, error) {
	d.lastOp = "async"
	return d.numIPs, "saas-challenge", d.metering, nil
}

func (d *fakeDriver) SyncExtractMetering() (uint32, string, [3]string, error) {
	d.lastOp = "sync"
	return d.numIPs, "saas-challenge", d.metering, nil
}

func (d *fakeDriver) EndSessionAndExtractMetering() (uint32, string, [3]string, error) {
	d.lastOp = "end"
	return d.numIPs, "saas-challenge", d.metering, nil
}

func (d *fakeDriver) Activate(key string) (bool, uint8, error) {
	d.lastActivateKey = key
	return true, d.activationCode, nil
}

func (d *fakeDriver) LoadTimer(timer string) (bool, error) {
	d.lastTimer = timer
	return d.timerEnabled, nil
}

func (d *fakeDriver) SampleTimerCounter() (uint64, error) { return 0x0102030405060708, nil }

func (d *fakeDriver) statusBit(bit uint) bool { return d.bits&(1<<bit) != 0 }

func (d *fakeDriver) StatusSessionRunning() (bool, error) { return d.statusBit(statusBitSessionRunning), nil }
func (d *fakeDriver) StatusIsMetered() (bool, error)      { return d.statusBit(statusBitIsMetered), nil }
func (d *fakeDriver) StatusIsNodeLocked() (bool, error)   { return d.statusBit(statusBitIsNodeLocked), nil }
func (d *fakeDriver) StatusTimerLoaded() (bool, error)    { return d.statusBit(statusBitTimerLoaded), nil }
func (d *fakeDriver) StatusTimerEmpty() (bool, error)     { return d.statusBit(statusBitTimerEmpty), nil }

func (d *fakeDriver) NumActivators() (uint32, error) { return d.numActivatorsN, nil }

func newTestFacade(d *fakeDriver) *Facade {
	return NewWithDriver(d, 3, 0, zerolog.Nop())
}

func TestInitAcceptsCompatibleVersion(t *testing.T) {
	d := &fakeDriver{version: "3.2.1"}
	f := newTestFacade(d)
	if err := f.Init(); err != nil {
		t.Fatalf("Init() = %v, want nil", err)
	}
}

func TestInitRejectsOlderVersion(t *testing.T) {
	d := &fakeDriver{version: "2.9.9"}
	f := newTestFacade(d)
	err := f.Init()
	if err == nil {
		t.Fatal("Init() = nil, want ControllerError for incompatible version")
	}
	if kind, ok := drmerr.KindOf(err); !ok || kind != drmerr.ControllerError {
		t.Fatalf("Init() kind = %v, want ControllerError", kind)
	}
}

func TestInitRejectsEqualMajorOlderMinor(t *testing.T) {
	d := &fakeDriver{version: "3.0.0"}
	f := NewWithDriver(d, 3, 1, zerolog.Nop())
	if err := f.Init(); err == nil {
		t.Fatal("Init() = nil, want error: 3.0.0 < required 3.1")
	}
}

func TestChallengeCommandsMapCorrectly(t *testing.T) {
	d := &fakeDriver{numIPs: 2, metering: [3]string{"a", "b", "c"}}
	f := newTestFacade(d)

	cases := []struct {
		call func() (Metering, error)
		want string
	}{
		{f.Initialization, "initialization"},
		{f.AsyncExtractMetering, "async"},
		{f.SyncExtractMetering, "sync"},
		{f.EndSessionAndExtractMetering, "end"},
	}
	for _, tc := range cases {
		m, err := tc.call()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.lastOp != tc.want {
			t.Errorf("issued op %v, want %v", d.lastOp, tc.want)
		}
		if m.NumActivators != 2 || m.SaaSChallenge != "saas-challenge" {
			t.Errorf("unexpected metering result %+v", m)
		}
	}
}

func TestStatusBits(t *testing.T) {
	d := &fakeDriver{bits: 1<<statusBitSessionRunning | 1<<statusBitTimerEmpty}
	f := newTestFacade(d)

	if running, _ := f.StatusSessionRunning(); !running {
		t.Error("StatusSessionRunning() = false, want true")
	}
	if metered, _ := f.StatusIsMetered(); metered {
		t.Error("StatusIsMetered() = true, want false")
	}
	if empty, _ := f.StatusTimerEmpty(); !empty {
		t.Error("StatusTimerEmpty() = false, want true")
	}
}

func TestWriteUserCustomFieldPreservesOtherSlots(t *testing.T) {
	d := &fakeDriver{rw: []uint32{11, 22, 33, 44}}
	f := newTestFacade(d)

	if err := f.WriteUserCustomField(99); err != nil {
		t.Fatalf("WriteUserCustomField: %v", err)
	}
	want := []uint32{11, 99, 33, 44}
	for i, w := range want {
		if d.rw[i] != w {
			t.Errorf("rw[%d] = %d, want %d", i, d.rw[i], w)
		}
	}
}

func TestWriteUserWordOutOfRangeFails(t *testing.T) {
	d := &fakeDriver{rw: []uint32{11, 22, 33, 44}}
	f := newTestFacade(d)

	err := f.WriteUserWord(5, 1)
	if err == nil {
		t.Fatal("WriteUserWord(5, ...) = nil, want BadArgument: only 2 user words available")
	}
	if kind, ok := drmerr.KindOf(err); !ok || kind != drmerr.BadArgument {
		t.Fatalf("kind = %v, want BadArgument", kind)
	}
}

func TestReadUserWordRoundTrip(t *testing.T) {
	d := &fakeDriver{rw: []uint32{0, 0, 0, 0}}
	f := newTestFacade(d)

	if err := f.WriteUserWord(1, 777); err != nil {
		t.Fatalf("WriteUserWord: %v", err)
	}
	got, err := f.ReadUserWord(1)
	if err != nil {
		t.Fatalf("ReadUserWord: %v", err)
	}
	if got != 777 {
		t.Errorf("ReadUserWord(1) = %d, want 777", got)
	}
}

func TestAcquireReleaseInstanceLockAreNoOps(t *testing.T) {
	f := newTestFacade(&fakeDriver{})
	if err := f.AcquireInstanceLock(); err != nil {
		t.Fatalf("AcquireInstanceLock: %v", err)
	}
	if err := f.ReleaseInstanceLock(); err != nil {
		t.Fatalf("ReleaseInstanceLock: %v", err)
	}
}

func TestActivateForwardsKeyAndErrorCode(t *testing.T) {
	d := &fakeDriver{activationCode: 7}
	f := newTestFacade(d)
	activated, code, err := f.Activate("license-key")
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !activated || code != 7 {
		t.Errorf("Activate() = (%v, %d), want (true, 7)", activated, code)
	}
	if d.lastActivateKey != "license-key" {
		t.Errorf("driver received key %q, want %q", d.lastActivateKey, "license-key")
	}
}
