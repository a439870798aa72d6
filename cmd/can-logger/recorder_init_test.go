package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-can-logger/internal/recorder"
	"github.com/kstaniek/go-can-logger/internal/serial"
	"github.com/kstaniek/go-can-logger/internal/storage"
)

// TestSerialToCard runs the daemon pipeline end to end: UART adapter bytes in,
// a verified session file on the card out.
func TestSerialToCard(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Config.txt"), []byte("baud 250\ntimestamp 0\nlog_std 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var stream []byte
	for i := 0; i < 5; i++ {
		stream = append(stream, serTestWireEnvelope(uint32(0x100+i), []byte{byte(i), 0xEE})...)
	}
	openSerialPort = func(name string, baud int, to time.Duration) (serial.Port, error) {
		return &fakeSerialPort{reads: [][]byte{stream}}, nil
	}
	defer func() { openSerialPort = serial.Open }()

	cfg := defaultConfig()
	cfg.storageRoot = dir
	cfg.backend = "serial"
	cfg.idleFlush = 30 * time.Millisecond
	cfg.pollInterval = 2 * time.Millisecond
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	rec, err := initRecorder(cfg, testLogger())
	if err != nil {
		t.Fatalf("initRecorder: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rec.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if rec.State() != recorder.StateLogging {
		t.Fatalf("state %v", rec.State())
	}
	var wg sync.WaitGroup
	cleanup, err := initBackend(ctx, cfg, rec, testLogger(), &wg)
	if err != nil {
		t.Fatalf("initBackend: %v", err)
	}
	path := filepath.Join(dir, rec.FileName())
	deadline := time.Now().Add(2 * time.Second)
	var rep verifyReport
	for {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read session: %v", err)
		}
		rep, err = verifyStream(bytes.NewReader(data), cfg.blockSize)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if rep.Records == 5 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	cleanup()
	rec.Close()
	wg.Wait()
	if rep.Records != 5 || !rep.Aligned || len(rep.Malformed) != 0 || rep.Timestamp {
		t.Fatalf("unexpected session file: %+v", rep)
	}
}

func TestInitRecorderMountFailure(t *testing.T) {
	cfg := defaultConfig()
	cfg.storageRoot = filepath.Join(t.TempDir(), "absent")
	rec, err := initRecorder(cfg, testLogger())
	if err != nil {
		t.Fatalf("initRecorder: %v", err)
	}
	defer rec.Close()
	if err := rec.Start(context.Background()); !errors.Is(err, storage.ErrMount) {
		t.Fatalf("expected mount failure, got %v", err)
	}
	if rec.Ready() || rec.State() != recorder.StateBoot {
		t.Fatalf("state %v", rec.State())
	}
}
