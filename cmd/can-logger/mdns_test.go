package main

import (
	"context"
	"testing"
)

func TestMetricsPort(t *testing.T) {
	for addr, want := range map[string]int{":9100": 9100, "0.0.0.0:8080": 8080, "[::1]:1": 1} {
		got, err := metricsPort(addr)
		if err != nil || got != want {
			t.Fatalf("metricsPort(%q) = %d, %v; want %d", addr, got, err, want)
		}
	}
	for _, addr := range []string{"", "9100", ":0", ":http", ":70000"} {
		if _, err := metricsPort(addr); err == nil {
			t.Fatalf("metricsPort(%q) expected error", addr)
		}
	}
}

func TestStartMDNSDisabled(t *testing.T) {
	cleanup, err := startMDNS(context.Background(), &appConfig{})
	if err != nil || cleanup == nil {
		t.Fatalf("disabled mdns must be a no-op: %v", err)
	}
	cleanup()
}
