package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/fpga-edge/drm-agent-go/internal/drmerr"
	"github.com/fpga-edge/drm-agent-go/internal/license"
	"github.com/fpga-edge/drm-agent-go/pkg/designhash"
)

// activateNodeLocked brings an offline session into NodeLockedReady
// (spec §4.H). It never spawns a worker: a node-locked design is
// activated exactly once per power cycle and the license it installs
// does not expire.
//
// The design hash names a pair of files in nodeLockDir: <hash>.req
// holds the open request for this exact design (DNA, version, VLNVs),
// and <hash>.lic holds the signed response once one has been fetched.
// Either file may be produced offline (see cmd/drm-license-tool) and
// dropped into the directory ahead of time. With a <hash>.lic present
// Activate never touches the network; a pre-staged <hash>.req alone is
// reused as the request, which is still sent to the web service.
func (s *Session) activateNodeLocked(ctx context.Context) error {
	if s.State() == NodeLockedReady {
		return nil
	}

	if info, err := os.Stat(s.nodeLockDir); err != nil || !info.IsDir() {
		return drmerr.New(drmerr.BadArgument, "node-locked license directory %q is not accessible", s.nodeLockDir)
	}

	hash, err := s.designHash()
	if err != nil {
		return err
	}
	licPath := filepath.Join(s.nodeLockDir, hash+".lic")
	reqPath := filepath.Join(s.nodeLockDir, hash+".req")

	if resp, err := readLicenseFile(licPath); err == nil {
		if _, err := license.Install(s.ctrl, s.dna, false, s.builder, resp); err != nil {
			return err
		}
		s.setState(NodeLockedReady)
		return nil
	}

	req, err := s.loadOrCreateRequest(reqPath)
	if err != nil {
		return err
	}

	resp, err := s.fetchLicense(ctx, req, time.Now().Add(s.requestTimeout))
	if err != nil {
		return err
	}
	if data, err := json.MarshalIndent(resp, "", "  "); err == nil {
		_ = os.WriteFile(licPath, data, 0o644)
	}

	if _, err := license.Install(s.ctrl, s.dna, false, s.builder, resp); err != nil {
		return err
	}
	s.setState(NodeLockedReady)
	return nil
}

// designHash hashes together this design's DNA, reported version, and
// VLNV list — the identity a node-locked license is bound to (spec
// §4.H).
func (s *Session) designHash() (string, error) {
	version, err := s.ctrl.ExtractVersion()
	if err != nil {
		return "", err
	}
	vlnvs, err := s.ctrl.ExtractVLNVs()
	if err != nil {
		return "", err
	}
	return designhash.Compute(s.dna, version, vlnvs), nil
}

// loadOrCreateRequest reads a pre-staged .req file if one exists,
// otherwise builds a fresh open request and writes it out so a later
// offline tool can pick it up without re-reading the controller.
func (s *Session) loadOrCreateRequest(reqPath string) (*license.Request, error) {
	if data, err := os.ReadFile(reqPath); err == nil {
		var req license.Request
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, drmerr.Wrap(drmerr.BadFormat, err, "decode node-locked request %s", reqPath)
		}
		return &req, nil
	}

	req, err := s.builder.Open()
	if err != nil {
		return nil, err
	}
	if data, err := json.MarshalIndent(req, "", "  "); err == nil {
		_ = os.WriteFile(reqPath, data, 0o644)
	}
	return req, nil
}

func readLicenseFile(path string) (*license.Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var resp license.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, drmerr.Wrap(drmerr.BadFormat, err, "decode node-locked license %s", path)
	}
	return &resp, nil
}
