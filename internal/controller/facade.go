// Package controller implements the Controller Façade and Mailbox
// Codec (components A and B): a typed, mutex-guarded wrapper around
// the two caller-supplied register-access callbacks that everything
// above it — the session engine, the background worker, the
// node-locked path — talks to instead of touching registers directly.
package controller

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/fpga-edge/drm-agent-go/internal/drmerr"
)

func errRegisterIO(op string, n uint32, status int32) error {
	return drmerr.New(drmerr.ControllerError, "register %s failed at line %d: status %d", op, n, status)
}

// Metering is the decoded challenge/metering payload produced by the
// controller for an open, running, or close license request (spec
// §4.C). MeteringFile holds the raw three-string blob the controller
// returns; the request builder extracts the session-id prefix from its
// first string and concatenates all three into the request payload.
type Metering struct {
	NumActivators int
	SaaSChallenge string
	MeteringFile  [3]string
}

// Facade wraps a Driver with the mutex every composite operation
// needs. It owns no hardware state of its own — all state lives
// behind the Driver (the register-bus adapter, or internal/hwsim's
// simulator).
//
// Composite operations lock once in the exported method (or in
// writeSlot) and call the Driver directly while holding it; methods
// that do not lock may call locking ones — the Go equivalent of the
// original's reentrant mutex, without needing an actual reentrant lock.
type Facade struct {
	mu sync.Mutex

	drv Driver
	log zerolog.Logger

	minVersionMajor int
	minVersionMinor int

	instanceLocked bool
}

// New builds a Facade around the caller-supplied register callbacks.
// minVersionMajor/minVersionMinor is the HDK compatibility floor (spec
// §4.A); Init enforces it before any other operation is attempted.
func New(read ReadRegisterFunc, write WriteRegisterFunc, minVersionMajor, minVersionMinor int, log zerolog.Logger) *Facade {
	return NewWithDriver(newRegisterDriver(read, write), minVersionMajor, minVersionMinor, log)
}

// NewWithDriver builds a Facade around an already-decoded Driver —
// the seam internal/hwsim's simulator and this module's own tests use
// to avoid register-level encoding.
func NewWithDriver(drv Driver, minVersionMajor, minVersionMinor int, log zerolog.Logger) *Facade {
	return &Facade{drv: drv, log: log, minVersionMajor: minVersionMajor, minVersionMinor: minVersionMinor}
}

// Init verifies the controller's reported version meets the
// configured HDK compatibility floor. It must be the first operation
// performed against a freshly constructed Facade (spec §4.A, Init).
func (f *Facade) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	version, err := f.drv.ExtractVersion()
	if err != nil {
		return err
	}
	major, minor, ok := parseMajorMinor(version)
	if !ok {
		return drmerr.New(drmerr.ControllerError, "malformed controller version %q", version)
	}
	if major < f.minVersionMajor || (major == f.minVersionMajor && minor < f.minVersionMinor) {
		return drmerr.New(drmerr.ControllerError,
			"controller version %s older than required %d.%d", version, f.minVersionMajor, f.minVersionMinor)
	}
	f.log.Debug().Str("controller_version", version).Msg("controller HDK compatibility check passed")
	return nil
}

func parseMajorMinor(v string) (major, minor int, ok bool) {
	dot := -1
	for i, c := range v {
		if c == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return 0, 0, false
	}
	major, ok1 := atoiOK(v[:dot])
	rest := v[dot+1:]
	dot2 := -1
	for i, c := range rest {
		if c == '.' {
			dot2 = i
			break
		}
	}
	if dot2 < 0 {
		dot2 = len(rest)
	}
	minor, ok2 := atoiOK(rest[:dot2])
	return major, minor, ok1 && ok2
}

func atoiOK(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// ExtractVersion returns the controller's reported version string.
func (f *Facade) ExtractVersion() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drv.ExtractVersion()
}

// ExtractDNA returns the controller's device DNA, used both in the
// license request header and in the node-locked design hash.
func (f *Facade) ExtractDNA() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drv.ExtractDNA()
}

// ExtractVLNVs returns the VLNV identifiers of every activator
// attached to the controller.
func (f *Facade) ExtractVLNVs() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drv.ExtractVLNVs()
}

// ReadROMailbox returns the contents of the read-only mailbox region
// (component B), which carries the design's product JSON.
func (f *Facade) ReadROMailbox() ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ro, _, err := f.drv.ReadMailbox()
	return ro, err
}

// ReadRWMailbox returns the full read-write mailbox region.
func (f *Facade) ReadRWMailbox() ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, rw, err := f.drv.ReadMailbox()
	return rw, err
}

// WriteRWMailbox overwrites the full read-write mailbox region in one
// register transaction.
func (f *Facade) WriteRWMailbox(words []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drv.WriteMailbox(words)
}

// Initialization starts a fresh metering session and returns the
// first open-request challenge (spec §4.C, request phase "open").
func (f *Facade) Initialization() (Metering, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	numIPs, saas, metering, err := f.drv.Initialization()
	return toMetering(numIPs, saas, metering, err)
}

// AsyncExtractMetering returns the challenge for a running-phase
// request without blocking the controller's metering clock.
func (f *Facade) AsyncExtractMetering() (Metering, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	numIPs, saas, metering, err := f.drv.AsyncExtractMetering()
	return toMetering(numIPs, saas, metering, err)
}

// SyncExtractMetering returns the challenge for a running-phase
// request, quiescing the controller's metering clock first.
func (f *Facade) SyncExtractMetering() (Metering, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	numIPs, saas, metering, err := f.drv.SyncExtractMetering()
	return toMetering(numIPs, saas, metering, err)
}

// EndSessionAndExtractMetering closes the metering session and
// returns the final close-request challenge.
func (f *Facade) EndSessionAndExtractMetering() (Metering, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	numIPs, saas, metering, err := f.drv.EndSessionAndExtractMetering()
	return toMetering(numIPs, saas, metering, err)
}

func toMetering(numIPs uint32, saas string, metering [3]string, err error) (Metering, error) {
	if err != nil {
		return Metering{}, err
	}
	return Metering{NumActivators: int(numIPs), SaaSChallenge: saas, MeteringFile: metering}, nil
}

// Activate installs a license key returned by the web service and
// reports whether an activation error was signalled by the
// controller.
func (f *Facade) Activate(key string) (activated bool, activationErrorCode uint8, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drv.Activate(key)
}

// LoadTimer loads a license duration timer blob and reports whether
// the controller's timer-enabled feature is present.
func (f *Facade) LoadTimer(timer string) (enabled bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drv.LoadTimer(timer)
}

// SampleTimerCounter reads the raw licensing clock-cycle counter, used
// both for frequency auto-detection and for computing the remaining
// license time.
func (f *Facade) SampleTimerCounter() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drv.SampleTimerCounter()
}

// StatusSessionRunning reports whether a metering session is active.
func (f *Facade) StatusSessionRunning() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drv.StatusSessionRunning()
}

// StatusIsMetered reports whether the controller is configured for
// metered (as opposed to node-locked) licensing.
func (f *Facade) StatusIsMetered() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drv.StatusIsMetered()
}

// StatusIsNodeLocked reports whether the controller is configured for
// node-locked licensing.
func (f *Facade) StatusIsNodeLocked() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drv.StatusIsNodeLocked()
}

// StatusTimerLoaded reports whether a license duration timer is
// currently loaded — i.e. a new license is not yet needed.
func (f *Facade) StatusTimerLoaded() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drv.StatusTimerLoaded()
}

// StatusTimerEmpty reports whether the loaded timer has run out.
func (f *Facade) StatusTimerEmpty() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drv.StatusTimerEmpty()
}

// NumActivators returns the number of activator IP cores attached to
// the controller.
func (f *Facade) NumActivators() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.drv.NumActivators()
	return int(n), err
}

// AcquireInstanceLock and ReleaseInstanceLock correspond to the
// original's per-instance advisory lock. The original's
// implementation of both was an unconditional early return — no
// cross-process coordination was ever performed — so this Facade
// preserves that behavior exactly rather than inventing locking
// semantics the spec never asked for.
func (f *Facade) AcquireInstanceLock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instanceLocked = true
	return nil
}

// ReleaseInstanceLock is the counterpart to AcquireInstanceLock.
func (f *Facade) ReleaseInstanceLock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instanceLocked = false
	return nil
}
