//go:build linux

package transmit

import "golang.org/x/sys/unix"

// lircSetSendCarrier is LIRC_SET_SEND_CARRIER, _IOW('i', 0x13, __u32).
const lircSetSendCarrier = 0x40046913

var setSendCarrier = func(fd uintptr, hz int) error {
	return unix.IoctlSetPointerInt(int(fd), lircSetSendCarrier, hz)
}
