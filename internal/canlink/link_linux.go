//go:build linux

package canlink

import (
	"fmt"
	"net"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"golang.org/x/sys/unix"

	"github.com/kstaniek/go-can-logger/internal/config"
	"github.com/kstaniek/go-can-logger/internal/logging"
)

const (
	canLinkKind        = "can"
	ctrlModeListenOnly = 0x02 // CAN_CTRLMODE_LISTENONLY
	sizeofBitTiming    = 32
)

// Link configures a SocketCAN network interface.
type Link struct {
	Iface string
}

// Hook points for tests.
var (
	interfaceByName = net.InterfaceByName
	execute         = func(req netlink.Message) error {
		c, err := netlink.Dial(unix.NETLINK_ROUTE, &netlink.Config{})
		if err != nil {
			return fmt.Errorf("couldn't dial netlink socket: %w", err)
		}
		defer c.Close()
		_, err = c.Execute(req)
		return err
	}
)

// Configure takes the interface down, sets bitrate and listen-only mode from
// cfg and brings it back up.
func (l *Link) Configure(cfg *config.Config) error {
	ifc, err := interfaceByName(l.Iface)
	if err != nil {
		return fmt.Errorf("canlink: %s: %w", l.Iface, err)
	}
	tm := NewTiming(cfg)
	logging.L().Debug("link_configure", "iface", l.Iface, "bitrate", tm.BitrateBps(),
		"listen_only", tm.Silent, "prescaler", tm.Prescaler, "btr", fmt.Sprintf("0x%08X", tm.BTR()))

	if err := execute(linkStateRequest(ifc.Index, false)); err != nil {
		return fmt.Errorf("canlink: set %s down: %w", l.Iface, err)
	}
	req, err := linkParamsRequest(ifc.Index, tm)
	if err != nil {
		return fmt.Errorf("canlink: encode: %w", err)
	}
	// The interface is brought up even when the parameters were refused so
	// the receive path keeps working with the previous settings.
	perr := execute(req)
	if err := execute(linkStateRequest(ifc.Index, true)); err != nil {
		return fmt.Errorf("canlink: set %s up: %w", l.Iface, err)
	}
	if perr != nil {
		return fmt.Errorf("canlink: set %s params: %w", l.Iface, perr)
	}
	return nil
}

func ifInfoMsg(index int, flags, change uint32) []byte {
	b := make([]byte, unix.SizeofIfInfomsg)
	b[0] = unix.AF_UNSPEC
	nlenc.PutInt32(b[4:8], int32(index))
	nlenc.PutUint32(b[8:12], flags)
	nlenc.PutUint32(b[12:16], change)
	return b
}

func newLinkMessage(data []byte) netlink.Message {
	return netlink.Message{
		Header: netlink.Header{
			Type:  unix.RTM_NEWLINK,
			Flags: netlink.Request | netlink.Acknowledge,
		},
		Data: data,
	}
}

func linkStateRequest(index int, up bool) netlink.Message {
	var flags uint32
	if up {
		flags = unix.IFF_UP
	}
	return newLinkMessage(ifInfoMsg(index, flags, unix.IFF_UP))
}

func linkParamsRequest(index int, tm Timing) (netlink.Message, error) {
	ae := netlink.NewAttributeEncoder()
	ae.Nested(unix.IFLA_LINKINFO, func(nae *netlink.AttributeEncoder) error {
		nae.String(unix.IFLA_INFO_KIND, canLinkKind)
		nae.Nested(unix.IFLA_INFO_DATA, func(dae *netlink.AttributeEncoder) error {
			dae.Bytes(unix.IFLA_CAN_BITTIMING, bitTiming(tm.BitrateBps()))
			dae.Bytes(unix.IFLA_CAN_CTRLMODE, ctrlMode(tm.Silent))
			return nil
		})
		return nil
	})
	attrs, err := ae.Encode()
	if err != nil {
		return netlink.Message{}, err
	}
	return newLinkMessage(append(ifInfoMsg(index, 0, 0), attrs...)), nil
}

// bitTiming encodes struct can_bittiming with only the bitrate set; the
// kernel computes the segments.
func bitTiming(bitrate uint32) []byte {
	b := make([]byte, sizeofBitTiming)
	nlenc.PutUint32(b[0:4], bitrate)
	return b
}

// ctrlMode encodes struct can_ctrlmode {mask, flags}.
func ctrlMode(listenOnly bool) []byte {
	b := make([]byte, 8)
	nlenc.PutUint32(b[0:4], ctrlModeListenOnly)
	if listenOnly {
		nlenc.PutUint32(b[4:8], ctrlModeListenOnly)
	}
	return b
}
