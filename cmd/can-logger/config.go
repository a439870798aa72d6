package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-can-logger/internal/csvlog"
	"github.com/kstaniek/go-can-logger/internal/dblbuf"
	"github.com/kstaniek/go-can-logger/internal/recorder"
)

type appConfig struct {
	storageRoot     string
	backend         string
	canIf           string
	serialDev       string
	serialBaud      int
	serialReadTO    time.Duration
	configureLink   bool
	blockSize       int
	bufferSize      int
	flushThreshold  int
	idleFlush       time.Duration
	pollInterval    time.Duration
	rxQueue         int
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
}

func defaultConfig() *appConfig {
	return &appConfig{
		storageRoot:    "/media/card",
		backend:        "socketcan",
		canIf:          "can0",
		serialDev:      "/dev/ttyUSB0",
		serialBaud:     115200,
		serialReadTO:   50 * time.Millisecond,
		blockSize:      dblbuf.DefaultBlockSize,
		bufferSize:     dblbuf.DefaultCapacity,
		flushThreshold: dblbuf.DefaultThreshold,
		idleFlush:      recorder.DefaultIdleFlush,
		pollInterval:   recorder.DefaultPollInterval,
		rxQueue:        recorder.DefaultQueueSize,
		logFormat:      "text",
		logLevel:       "info",
	}
}

func parseFlags() (*appConfig, bool) {
	return parseFlagSet(flag.CommandLine, os.Args[1:])
}

func parseFlagSet(fs *flag.FlagSet, args []string) (*appConfig, bool) {
	cfg := defaultConfig()
	fs.StringVar(&cfg.storageRoot, "storage", cfg.storageRoot, "Mounted card directory (Config.txt and session files)")
	fs.StringVar(&cfg.backend, "backend", cfg.backend, "CAN backend: serial|socketcan")
	fs.StringVar(&cfg.canIf, "can-if", cfg.canIf, "SocketCAN interface (when -backend=socketcan)")
	fs.StringVar(&cfg.serialDev, "serial", cfg.serialDev, "Serial device path (when -backend=serial)")
	fs.IntVar(&cfg.serialBaud, "serial-baud", cfg.serialBaud, "Serial baud rate")
	fs.DurationVar(&cfg.serialReadTO, "serial-read-timeout", cfg.serialReadTO, "Serial read timeout")
	fs.BoolVar(&cfg.configureLink, "configure-link", cfg.configureLink, "Apply Config.txt bitrate and listen-only mode to the SocketCAN link")
	fs.IntVar(&cfg.blockSize, "block-size", cfg.blockSize, "Storage block size in bytes")
	fs.IntVar(&cfg.bufferSize, "buffer-size", cfg.bufferSize, "Bytes per buffer half (multiple of block size)")
	fs.IntVar(&cfg.flushThreshold, "flush-threshold", cfg.flushThreshold, "Buffer fill level that hands data to the writer")
	fs.DurationVar(&cfg.idleFlush, "idle-flush", cfg.idleFlush, "Flush buffered records after this long without a write")
	fs.DurationVar(&cfg.pollInterval, "poll-interval", cfg.pollInterval, "Writer poll interval")
	fs.IntVar(&cfg.rxQueue, "rx-queue", cfg.rxQueue, "Receive queue depth (frames)")
	fs.StringVar(&cfg.logFormat, "log-format", cfg.logFormat, "Log format: text|json")
	fs.StringVar(&cfg.logLevel, "log-level", cfg.logLevel, "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", cfg.metricsAddr, "Metrics HTTP listen address (e.g., :9100); empty disables")
	fs.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", cfg.logMetricsEvery, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	fs.BoolVar(&cfg.mdnsEnable, "mdns-enable", cfg.mdnsEnable, "Advertise the metrics endpoint via mDNS (requires -metrics-addr)")
	fs.StringVar(&cfg.mdnsName, "mdns-name", cfg.mdnsName, "mDNS instance name (default can-logger-<hostname>)")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, false
	}

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Fprintf(os.Stderr, "environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// geometry returns the double buffer sizes selected by the flags.
func (c *appConfig) geometry() dblbuf.Geometry {
	return dblbuf.Geometry{
		Capacity:  c.bufferSize,
		Threshold: c.flushThreshold,
		BlockSize: c.blockSize,
		MaxLine:   csvlog.MaxLineLen,
	}
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or the card – only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "serial", "socketcan":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	if c.storageRoot == "" {
		return errors.New("storage must not be empty")
	}
	if c.serialBaud <= 0 {
		return fmt.Errorf("serial-baud must be > 0 (got %d)", c.serialBaud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.idleFlush <= 0 {
		return fmt.Errorf("idle-flush must be > 0")
	}
	if c.pollInterval <= 0 {
		return fmt.Errorf("poll-interval must be > 0")
	}
	if c.rxQueue <= 0 {
		return fmt.Errorf("rx-queue must be > 0 (got %d)", c.rxQueue)
	}
	if err := c.geometry().Validate(); err != nil {
		return err
	}
	if c.mdnsEnable && c.metricsAddr == "" {
		return errors.New("mdns-enable requires metrics-addr")
	}
	return nil
}

// applyEnvOverrides maps CAN_LOGGER_* environment variables to config fields
// unless a corresponding flag was explicitly set. Empty values are ignored.
// Durations accept Go time.ParseDuration format. The first parse error is
// returned; later variables are still applied.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}
	// lookup returns the env value for key unless flag was set on the command line.
	lookup := func(flagName, key string) (string, bool) {
		if _, ok := set[flagName]; ok {
			return "", false
		}
		v, ok := os.LookupEnv(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	str := func(flagName, key string, dst *string) {
		if v, ok := lookup(flagName, key); ok {
			*dst = v
		}
	}
	integer := func(flagName, key string, min int, dst *int) {
		if v, ok := lookup(flagName, key); ok {
			n, err := strconv.Atoi(v)
			switch {
			case err != nil:
				fail(fmt.Errorf("invalid %s: %w", key, err))
			case n < min:
				fail(fmt.Errorf("invalid %s: %d < %d", key, n, min))
			default:
				*dst = n
			}
		}
	}
	duration := func(flagName, key string, dst *time.Duration) {
		if v, ok := lookup(flagName, key); ok {
			d, err := time.ParseDuration(v)
			switch {
			case err != nil:
				fail(fmt.Errorf("invalid %s: %w", key, err))
			case d < 0:
				fail(fmt.Errorf("invalid %s: negative duration", key))
			default:
				*dst = d
			}
		}
	}
	boolean := func(flagName, key string, dst *bool) {
		if v, ok := lookup(flagName, key); ok {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			default:
				fail(fmt.Errorf("invalid %s: %q", key, v))
			}
		}
	}

	str("storage", "CAN_LOGGER_STORAGE", &c.storageRoot)
	str("backend", "CAN_LOGGER_BACKEND", &c.backend)
	str("can-if", "CAN_LOGGER_IF", &c.canIf)
	str("serial", "CAN_LOGGER_SERIAL", &c.serialDev)
	integer("serial-baud", "CAN_LOGGER_SERIAL_BAUD", 1, &c.serialBaud)
	duration("serial-read-timeout", "CAN_LOGGER_SERIAL_READ_TIMEOUT", &c.serialReadTO)
	boolean("configure-link", "CAN_LOGGER_CONFIGURE_LINK", &c.configureLink)
	integer("block-size", "CAN_LOGGER_BLOCK_SIZE", 1, &c.blockSize)
	integer("buffer-size", "CAN_LOGGER_BUFFER_SIZE", 1, &c.bufferSize)
	integer("flush-threshold", "CAN_LOGGER_FLUSH_THRESHOLD", 1, &c.flushThreshold)
	duration("idle-flush", "CAN_LOGGER_IDLE_FLUSH", &c.idleFlush)
	duration("poll-interval", "CAN_LOGGER_POLL_INTERVAL", &c.pollInterval)
	integer("rx-queue", "CAN_LOGGER_RX_QUEUE", 1, &c.rxQueue)
	str("log-format", "CAN_LOGGER_LOG_FORMAT", &c.logFormat)
	str("log-level", "CAN_LOGGER_LOG_LEVEL", &c.logLevel)
	// An explicitly empty CAN_LOGGER_METRICS disables the endpoint.
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := os.LookupEnv("CAN_LOGGER_METRICS"); ok {
			c.metricsAddr = strings.TrimSpace(v)
		}
	}
	duration("log-metrics-interval", "CAN_LOGGER_LOG_METRICS_INTERVAL", &c.logMetricsEvery)
	boolean("mdns-enable", "CAN_LOGGER_MDNS_ENABLE", &c.mdnsEnable)
	str("mdns-name", "CAN_LOGGER_MDNS_NAME", &c.mdnsName)
	return firstErr
}
