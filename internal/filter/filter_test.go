package filter

import (
	"testing"

	"github.com/kstaniek/go-can-logger/internal/can"
	"github.com/kstaniek/go-can-logger/internal/config"
)

func TestAccept(t *testing.T) {
	all := config.Default()
	tests := []struct {
		name string
		cfg  config.Config
		fr   can.Frame
		want bool
	}{
		{"zero mask accepts std", all, can.Frame{Kind: can.Standard, ID: 0x123}, true},
		{"zero mask accepts ext", all, can.Frame{Kind: can.Extended, ID: 0x18FEF100}, true},
		{"std disabled", config.Config{AcceptExt: true}, can.Frame{Kind: can.Standard, ID: 0x1}, false},
		{"ext disabled", config.Config{AcceptStd: true}, can.Frame{Kind: can.Extended, ID: 0x1}, false},
		{
			"exact ext match",
			config.Config{AcceptExt: true, FilterMask: 0x1FFFFFFF, FilterValue: 0x18FF0000},
			can.Frame{Kind: can.Extended, ID: 0x18FF0000}, true,
		},
		{
			"exact ext mismatch",
			config.Config{AcceptExt: true, FilterMask: 0x1FFFFFFF, FilterValue: 0x18FF0000},
			can.Frame{Kind: can.Extended, ID: 0x18FE0000}, false,
		},
		{
			"value masked on both sides",
			config.Config{AcceptStd: true, FilterMask: 0x700, FilterValue: 0x1FF},
			can.Frame{Kind: can.Standard, ID: 0x100}, true,
		},
		{
			"masked bits differ",
			config.Config{AcceptStd: true, FilterMask: 0x700, FilterValue: 0x100},
			can.Frame{Kind: can.Standard, ID: 0x200}, false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			if got := Accept(tc.fr, &cfg); got != tc.want {
				t.Fatalf("Accept(%+v) = %v, want %v", tc.fr, got, tc.want)
			}
		})
	}
}

// TestAcceptMatchesDefinition checks the predicate against its definition over
// a sweep of identifiers, masks and kind settings.
func TestAcceptMatchesDefinition(t *testing.T) {
	masks := []uint32{0, 0x7FF, 0x700, 0x1FFFFFFF, 0x00FF0000}
	values := []uint32{0, 0x123, 0x18FF0000, 0x1FFFFFFF}
	ids := []uint32{0, 0x123, 0x7FF, 0x18FF0000, 0x18FE0000, 0x1FFFFFFF}
	for _, mask := range masks {
		for _, value := range values {
			for _, std := range []bool{false, true} {
				for _, ext := range []bool{false, true} {
					cfg := config.Config{FilterMask: mask, FilterValue: value, AcceptStd: std, AcceptExt: ext}
					for _, id := range ids {
						for _, kind := range []can.Kind{can.Standard, can.Extended} {
							enabled := (kind == can.Standard && std) || (kind == can.Extended && ext)
							want := enabled && id&mask == value&mask
							if got := Accept(can.Frame{Kind: kind, ID: id}, &cfg); got != want {
								t.Fatalf("mask=%X value=%X kind=%v id=%X std=%v ext=%v: got %v want %v",
									mask, value, kind, id, std, ext, got, want)
							}
						}
					}
				}
			}
		}
	}
}
