package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kstaniek/go-can-logger/internal/metrics"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "verify" {
		os.Exit(runVerify(os.Args[2:], os.Stdout))
	}
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("can-logger %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	rec, err := initRecorder(cfg, l)
	if err != nil {
		l.Error("recorder_init_error", "error", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	// Ready while a session is logging.
	metrics.SetReadinessFunc(rec.Ready)
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	// A failed startup is already logged; the recorder keeps draining frames
	// so the process stays up and reports not ready.
	_ = rec.Start(ctx)

	cleanup, berr := initBackend(ctx, cfg, rec, l, &wg)
	if berr != nil {
		l.Error("backend_init_error", "error", berr)
		cancel()
		rec.Close()
		wg.Wait()
		return
	}

	cleanupMDNS, err := startMDNS(ctx, cfg)
	if err != nil {
		l.Warn("mdns_start_failed", "error", err)
		cleanupMDNS = func() {}
	} else if cfg.mdnsEnable {
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "addr", cfg.metricsAddr)
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	// The session file is not closed: records not yet handed off are lost
	// exactly as on power loss, and everything written so far is synced.
	l.Info("shutdown_signal", "signal", s.String(), "state", rec.State().String(),
		"faults", rec.Faults().String(), "file", rec.FileName())
	cancel()
	cleanupMDNS()
	cleanup()
	rec.Close()
	wg.Wait()
}
