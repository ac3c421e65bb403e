//go:build !linux

package transmit

var setSendCarrier func(fd uintptr, hz int) error
