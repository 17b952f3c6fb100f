// Command drm-agentd runs the DRM client agent as a standalone daemon:
// it wires configuration, a controller (the software simulator in
// internal/hwsim, since no vendor register-bus driver is part of this
// module), the session engine, and the optional httpapi/events
// surfaces, then activates and holds the session open until signalled
// to stop — the daemon-main pattern grounded in xzhiot-lorawan_server's
// cmd/network-server/main.go (flag parsing, signal handling, a
// cancellable context, graceful shutdown on SIGINT/SIGTERM).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fpga-edge/drm-agent-go"
	"github.com/fpga-edge/drm-agent-go/internal/config"
	"github.com/fpga-edge/drm-agent-go/internal/controller"
	"github.com/fpga-edge/drm-agent-go/internal/events"
	"github.com/fpga-edge/drm-agent-go/internal/httpapi"
	"github.com/fpga-edge/drm-agent-go/internal/hwsim"
	"github.com/fpga-edge/drm-agent-go/internal/license"
	"github.com/fpga-edge/drm-agent-go/internal/retry"
	"github.com/fpga-edge/drm-agent-go/internal/session"
	"github.com/fpga-edge/drm-agent-go/internal/wsclient"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the agent configuration file")
	credsPath := flag.String("credentials", "credentials.json", "path to the web service credentials file")
	httpAddr := flag.String("http-addr", "", "address for the httpapi surface, e.g. :8090 (disabled if empty)")
	natsURL := flag.String("nats-url", "", "NATS server URL for lifecycle event publishing (disabled if empty)")
	eventsSubject := flag.String("events-subject", "drmagent.events", "NATS subject for lifecycle events")
	simDNA := flag.String("sim-dna", "SIMULATED-0001", "DNA reported by the software controller simulator")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
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
	}, cfg.Licensing.NodeLocked, 1, 8, 32)

	ctrl := controller.NewWithDriver(sim, cfg.DRM.MinVersionMajor, cfg.DRM.MinVersionMinor, log)
	ws := wsclient.New(creds, time.Duration(cfg.Settings.WSRequestTimeout)*time.Second, log)
	defer ws.Close()

	var hub *httpapi.Hub
	hubDone := make(chan struct{})
	if *httpAddr != "" {
		hub = httpapi.NewHub(log)
		go hub.Run(hubDone)
	}

	var publisher *events.Publisher
	if *natsURL != "" {
		publisher, err = events.Connect(*natsURL, *eventsSubject, log)
		if err != nil {
			log.Warn().Err(err).Msg("connect to NATS, lifecycle events will not be published")
		} else {
			defer publisher.Close()
		}
	}

	opts := session.Options{
		NodeLocked:   cfg.Licensing.NodeLocked,
		NodeLockDir:  cfg.Licensing.LicenseDir,
		FrequencyMHz: cfg.DRM.FrequencyMHz,
		RetryPeriods: retry.Periods{
			ShortPeriod: time.Duration(cfg.Settings.WSRetryPeriodShort) * time.Second,
			LongPeriod:  time.Duration(cfg.Settings.WSRetryPeriodLong) * time.Second,
		},
		RequestTimeout:   time.Duration(cfg.Settings.WSRequestTimeout) * time.Second,
		FreqDetectPeriod: time.Duration(cfg.Settings.FrequencyDetectionPeriodMs) * time.Millisecond,
		FreqDetectThresh: cfg.Settings.FrequencyDetectionThreshold,
		Header: license.Header{
			UDID:      cfg.Design.UDID,
			BoardType: cfg.Design.BoardType,
		},
		OnAsyncError: func(err error) {
			log.Error().Err(err).Msg("background worker terminated")
		},
		OnEvent: func(ev session.Event) {
			if hub != nil {
				hub.OnEvent(ev)
			}
			if publisher != nil {
				publisher.OnEvent(ev)
			}
		},
		Log: log,
	}

	agent, err := drmagent.New(ctrl, ws, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("construct agent")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := agent.Activate(ctx, false); err != nil {
		log.Fatal().Err(err).Msg("activate session")
	}
	log.Info().Str("state", agent.State().String()).Msg("session activated")

	var httpServer *httpapi.Server
	if *httpAddr != "" {
		httpServer = httpapi.NewServer(agent, hub, log)
		go func() {
			if err := httpServer.ListenAndServe(*httpAddr); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("httpapi server stopped")
			}
		}()
	}

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
		close(hubDone)
	}
	if err := agent.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("close agent")
	}
	log.Info().Msg("drm-agentd stopped")
}
