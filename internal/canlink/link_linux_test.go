//go:build linux

package canlink

import (
	"errors"
	"net"
	"testing"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/kstaniek/go-can-logger/internal/config"
)

func withFakes(t *testing.T, exec func(netlink.Message) error) {
	t.Helper()
	origIf, origExec := interfaceByName, execute
	interfaceByName = func(string) (*net.Interface, error) { return &net.Interface{Index: 7, Name: "can0"}, nil }
	execute = exec
	t.Cleanup(func() { interfaceByName, execute = origIf, origExec })
}

func TestLinkParamsRequest(t *testing.T) {
	req, err := linkParamsRequest(7, Timing{BitrateKbps: 250, Prescaler: 2, Silent: true})
	require.NoError(t, err)
	assert.Equal(t, netlink.HeaderType(unix.RTM_NEWLINK), req.Header.Type)
	require.Greater(t, len(req.Data), unix.SizeofIfInfomsg)
	assert.Equal(t, int32(7), nlenc.Int32(req.Data[4:8]))

	ad, err := netlink.NewAttributeDecoder(req.Data[unix.SizeofIfInfomsg:])
	require.NoError(t, err)
	var kind string
	var bitrate, mask, flags uint32
	for ad.Next() {
		if ad.Type() != unix.IFLA_LINKINFO {
			continue
		}
		ad.Nested(func(nad *netlink.AttributeDecoder) error {
			for nad.Next() {
				switch nad.Type() {
				case unix.IFLA_INFO_KIND:
					kind = nad.String()
				case unix.IFLA_INFO_DATA:
					nad.Nested(func(dad *netlink.AttributeDecoder) error {
						for dad.Next() {
							b := dad.Bytes()
							switch dad.Type() {
							case unix.IFLA_CAN_BITTIMING:
								bitrate = nlenc.Uint32(b[0:4])
							case unix.IFLA_CAN_CTRLMODE:
								mask = nlenc.Uint32(b[0:4])
								flags = nlenc.Uint32(b[4:8])
							}
						}
						return nil
					})
				}
			}
			return nil
		})
	}
	require.NoError(t, ad.Err())
	assert.Equal(t, "can", kind)
	assert.Equal(t, uint32(250000), bitrate)
	assert.Equal(t, uint32(ctrlModeListenOnly), mask)
	assert.Equal(t, uint32(ctrlModeListenOnly), flags)
}

func TestConfigureSequence(t *testing.T) {
	var steps []string
	withFakes(t, func(m netlink.Message) error {
		switch {
		case len(m.Data) > unix.SizeofIfInfomsg:
			steps = append(steps, "params")
		case nlenc.Uint32(m.Data[8:12])&unix.IFF_UP != 0:
			steps = append(steps, "up")
		default:
			steps = append(steps, "down")
		}
		return nil
	})
	cfg := config.Default()
	cfg.BitrateKbps = 500
	l := &Link{Iface: "can0"}
	require.NoError(t, l.Configure(&cfg))
	assert.Equal(t, []string{"down", "params", "up"}, steps)
}

func TestConfigureParamsRefusedStillUp(t *testing.T) {
	var ups int
	withFakes(t, func(m netlink.Message) error {
		if len(m.Data) > unix.SizeofIfInfomsg {
			return errors.New("operation not supported")
		}
		if nlenc.Uint32(m.Data[8:12])&unix.IFF_UP != 0 {
			ups++
		}
		return nil
	})
	cfg := config.Default()
	cfg.BitrateKbps = 125
	err := (&Link{Iface: "vcan0"}).Configure(&cfg)
	require.Error(t, err)
	assert.Equal(t, 1, ups)
}
