// Package hwsim implements a software stand-in for the FPGA-hosted
// licensing controller: it satisfies controller.Driver directly (no
// register-bus encoding) so cmd/drm-agentd can run against a design
// that was never programmed onto real hardware, and so tests
// elsewhere in the module can drive the full session engine against a
// controller whose behavior they fully control.
package hwsim

import (
	"sync"

	"github.com/fpga-edge/drm-agent-go/internal/drmerr"
)

// Design describes the fixed identity of the simulated FPGA design —
// the values a real controller would report from its identity page.
type Design struct {
	Version string
	DNA     string
	VLNVs   []string
}

// Simulator is a controller.Driver backed entirely by in-memory state.
// One session is tracked at a time, matching what a single physical
// controller instance would support.
type Simulator struct {
	mu sync.Mutex

	design       Design
	nodeLocked   bool
	numActivator uint32
	roMailbox    []uint32
	rwMailbox    []uint32

	sessionRunning bool
	timerLoaded    bool
	timerEmpty     bool
	timerCounter   uint64
	activated      bool

	sessionSeq int
}

// New builds a Simulator for the given design identity. rwMailboxSize
// sizes the addressable read-write mailbox (spec §4.B); node-locked
// selects which mode status bit (metered or node-locked) the
// simulator reports.
func New(design Design, nodeLocked bool, numActivators uint32, roMailboxSize, rwMailboxSize int) *Simulator {
	return &Simulator{
		design:       design,
		nodeLocked:   nodeLocked,
		numActivator: numActivators,
		roMailbox:    make([]uint32, roMailboxSize),
		rwMailbox:    make([]uint32, rwMailboxSize),
		timerEmpty:   true,
	}
}

// SetTimerCounter lets a test or the demo command fast-forward the
// simulated licensing clock, e.g. to drive frequency auto-detection or
// the worker's remaining-license-time computation without a real wait.
func (s *Simulator) SetTimerCounter(v uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timerCounter = v
}

func (s *Simulator) ExtractVersion() (string, error) { return s.design.Version, nil }
func (s *Simulator) ExtractDNA() (string, error)     { return s.design.DNA, nil }
func (s *Simulator) ExtractVLNVs() ([]string, error) { return s.design.VLNVs, nil }

func (s *Simulator) ReadMailbox() (ro, rw []uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ro = append([]uint32(nil), s.roMailbox...)
	rw = append([]uint32(nil), s.rwMailbox...)
	return ro, rw, nil
}

func (s *Simulator) WriteMailbox(rw []uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(rw) != len(s.rwMailbox) {
		return drmerr.New(drmerr.BadArgument, "mailbox write of %d words does not match capacity %d", len(rw), len(s.rwMailbox))
	}
	copy(s.rwMailbox, rw)
	return nil
}

func (s *Simulator) challenge() (uint32, string, [3]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionRunning = true
	metering := [3]string{
		sessionIDFor(s.sessionSeq),
		"metering-blob",
		"",
	}
	return s.numActivator, "saas-challenge", metering, nil
}

func (s *Simulator) Initialization() (uint32, string, [3]string, error) {
	s.mu.Lock()
	s.sessionSeq++
	s.mu.Unlock()
	return s.challenge()
}

func (s *Simulator) AsyncExtractMetering() (uint32, string, [3]string, error) {
	return s.challenge()
}

func (s *Simulator) SyncExtractMetering() (uint32, string, [3]string, error) {
	return s.challenge()
}

func (s *Simulator) EndSessionAndExtractMetering() (uint32, string, [3]string, error) {
	numIPs, saas, metering, err := s.challenge()
	s.mu.Lock()
	s.sessionRunning = false
	s.timerLoaded = false
	s.timerEmpty = true
	s.mu.Unlock()
	return numIPs, saas, metering, err
}

func (s *Simulator) Activate(key string) (bool, uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == "" {
		return false, 1, nil
	}
	s.activated = true
	return true, 0, nil
}

func (s *Simulator) LoadTimer(timer string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer == "" {
		return false, nil
	}
	s.timerLoaded = true
	s.timerEmpty = false
	return true, nil
}

func (s *Simulator) SampleTimerCounter() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timerCounter, nil
}

func (s *Simulator) StatusSessionRunning() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionRunning, nil
}

func (s *Simulator) StatusIsMetered() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.nodeLocked, nil
}

func (s *Simulator) StatusIsNodeLocked() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeLocked, nil
}

func (s *Simulator) StatusTimerLoaded() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timerLoaded, nil
}

func (s *Simulator) StatusTimerEmpty() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timerEmpty, nil
}

func (s *Simulator) NumActivators() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numActivator, nil
}

func sessionIDFor(seq int) string {
	const digits = "0123456789abcdef"
	id := make([]byte, 16)
	for i := range id {
		id[i] = digits[(seq*7+i*13)%16]
	}
	return string(id)
}
