// Package config reads the session options from the card's Config.txt.
//
// The file holds one "<name> <integer>" option per line. Parsing is
// deliberately lenient: unknown names are ignored and values that do not
// parse as integers keep their default. Only a usable baud is mandatory.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/kstaniek/go-can-logger/internal/can"
)

// FileName is the configuration file expected at the storage root.
const FileName = "Config.txt"

// MaxBitrateKbps is the classic CAN limit; larger baud values are clamped.
const MaxBitrateKbps = 1000

// Option names recognized in Config.txt.
const (
	OptBaud        = "baud"
	OptAckEnable   = "ack_en"
	OptFilterMask  = "id_filter_mask"
	OptFilterValue = "id_filter_value"
	OptTimestamp   = "timestamp"
	OptLogStd      = "log_std"
	OptLogExt      = "log_ext"
)

var (
	// ErrNotFound is returned by callers when Config.txt is absent.
	ErrNotFound = errors.New("config: file not found")
	// ErrNoBaud means the file carried no positive integer baud option.
	ErrNoBaud = errors.New("config: missing or invalid baud")
	// ErrSyntax wraps failures of the underlying line parser.
	ErrSyntax = errors.New("config: syntax")
)

// Config is the per-session logger configuration. It is immutable once a
// session has started.
type Config struct {
	BitrateKbps      int
	AckEnabled       bool // false selects silent (listen-only) mode
	FilterMask       uint32
	FilterValue      uint32
	IncludeTimestamp bool
	AcceptStd        bool
	AcceptExt        bool
}

// Default returns the option defaults used for anything Config.txt omits.
func Default() Config {
	return Config{
		IncludeTimestamp: true,
		AcceptStd:        true,
		AcceptExt:        true,
	}
}

// ListenOnly reports whether the controller must stay bus-silent.
func (c *Config) ListenOnly() bool { return !c.AckEnabled }

// Parse reads Config.txt contents. It fails only when the text cannot be
// tokenized at all or when no valid baud was found.
func Parse(data []byte) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters:      " \t",
		AllowBooleanKeys:        true,
		SkipUnrecognizableLines: true,
		AllowShadows:            false,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	cfg := Default()
	haveBaud := false
	// Sections are not part of the format; a stray "[x]" line must not hide
	// the options after it, so every section is scanned in file order.
	for _, sec := range f.Sections() {
		for _, k := range sec.Keys() {
			v, ok := parseInt(k.Value())
			if !ok {
				continue
			}
			switch k.Name() {
			case OptBaud:
				if v > 0 {
					cfg.BitrateKbps = int(min(v, MaxBitrateKbps))
					haveBaud = true
				}
			case OptAckEnable:
				cfg.AckEnabled = v != 0
			case OptFilterMask:
				cfg.FilterMask = uint32(v) & can.CAN_EFF_MASK
			case OptFilterValue:
				cfg.FilterValue = uint32(v) & can.CAN_EFF_MASK
			case OptTimestamp:
				cfg.IncludeTimestamp = v != 0
			case OptLogStd:
				cfg.AcceptStd = v != 0
			case OptLogExt:
				cfg.AcceptExt = v != 0
			}
		}
	}
	if !haveBaud {
		return nil, ErrNoBaud
	}
	return &cfg, nil
}

// parseInt takes the first whitespace separated field of v as a decimal or
// 0x-prefixed hexadecimal integer.
func parseInt(v string) (int64, bool) {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return 0, false
	}
	s := fields[0]
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		n, err := strconv.ParseUint(s[2:], 16, 32)
		return int64(n), err == nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
