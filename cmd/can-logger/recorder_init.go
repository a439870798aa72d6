package main

import (
	"log/slog"

	"github.com/kstaniek/go-can-logger/internal/canlink"
	"github.com/kstaniek/go-can-logger/internal/recorder"
	"github.com/kstaniek/go-can-logger/internal/storage"
)

// mountStorage is a hook for tests.
var mountStorage = func(root string) (recorder.Storage, error) {
	c, err := storage.Mount(root)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func initRecorder(cfg *appConfig, l *slog.Logger) (*recorder.Recorder, error) {
	opts := recorder.Options{
		Geometry:     cfg.geometry(),
		IdleFlush:    cfg.idleFlush,
		PollInterval: cfg.pollInterval,
		QueueSize:    cfg.rxQueue,
		Mount:        func() (recorder.Storage, error) { return mountStorage(cfg.storageRoot) },
		Logger:       l,
	}
	switch {
	case cfg.configureLink && cfg.backend == "socketcan":
		opts.Link = &canlink.Link{Iface: cfg.canIf}
	case cfg.configureLink:
		l.Warn("configure_link_ignored", "backend", cfg.backend, "reason", "only socketcan links can be configured")
	}
	l.Info("build_info", "version", version, "commit", commit, "date", date)
	l.Info("recorder_config", "storage", cfg.storageRoot, "buffer", cfg.bufferSize,
		"threshold", cfg.flushThreshold, "block", cfg.blockSize, "idle_flush", cfg.idleFlush,
		"rx_queue", cfg.rxQueue, "configure_link", opts.Link != nil)
	return recorder.New(opts)
}
