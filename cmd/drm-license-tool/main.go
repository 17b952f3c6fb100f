// Command drm-license-tool drives the node-locked path (spec §4.H) to
// completion against a license directory and exits, without running a
// daemon or spawning a worker — the offline-issuance counterpart to
// cmd/drm-agentd, for operators who provision node-locked designs
// ahead of deployment rather than at device boot.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fpga-edge/drm-agent-go"
	"github.com/fpga-edge/drm-agent-go/internal/config"
	"github.com/fpga-edge/drm-agent-go/internal/controller"
	"github.com/fpga-edge/drm-agent-go/internal/hwsim"
	"github.com/fpga-edge/drm-agent-go/internal/license"
	"github.com/fpga-edge/drm-agent-go/internal/retry"
	"github.com/fpga-edge/drm-agent-go/internal/session"
	"github.com/fpga-edge/drm-agent-go/internal/wsclient"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the agent configuration file (licensing.nodelocked must be true)")
	credsPath := flag.String("credentials", "credentials.json", "path to the web service credentials file")
	simDNA := flag.String("sim-dna", "SIMULATED-0001", "DNA reported by the software controller simulator")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.Licensing.NodeLocked {
		fmt.Fprintln(os.Stderr, "licensing.nodelocked must be true for drm-license-tool")
		os.Exit(1)
	}
	creds, err := config.LoadCredentials(*credsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load credentials: %v\n", err)
		os.Exit(1)
	}

	log := config.NewLogger(cfg.Settings, config.DefaultLogWriter)

	sim := hwsim.New(hwsim.Design{
		Version: fmt.Sprintf("%d.%d.0", cfg.DRM.MinVersionMajor, cfg.DRM.MinVersionMinor),
		DNA:     *simDNA,
		VLNVs:   []string{"vendor:drm-agent:activator:1.0"},
	}, true, 1, 8, 32)

	ctrl := controller.NewWithDriver(sim, cfg.DRM.MinVersionMajor, cfg.DRM.MinVersionMinor, log)
	ws := wsclient.New(creds, time.Duration(cfg.Settings.WSRequestTimeout)*time.Second, log)
	defer ws.Close()

	opts := session.Options{
		NodeLocked:  true,
		NodeLockDir: cfg.Licensing.LicenseDir,
		RetryPeriods: retry.Periods{
			ShortPeriod: time.Duration(cfg.Settings.WSRetryPeriodShort) * time.Second,
			LongPeriod:  time.Duration(cfg.Settings.WSRetryPeriodLong) * time.Second,
		},
		RequestTimeout: time.Duration(cfg.Settings.WSRequestTimeout) * time.Second,
		Header: license.Header{
			UDID:      cfg.Design.UDID,
			BoardType: cfg.Design.BoardType,
		},
		Log: log,
	}

	agent, err := drmagent.New(ctrl, ws, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "construct agent: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.RequestTimeout+5*time.Second)
	defer cancel()

	if err := agent.Activate(ctx, false); err != nil {
		fmt.Fprintf(os.Stderr, "node-locked activation failed: %v\n", err)
		os.Exit(1)
	}

	report, err := agent.DumpControllerReport()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dump controller report: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("node-locked license installed (state=%s)\n%s", agent.State().String(), report)
}
