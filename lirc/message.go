package lirc

import (
	"errors"
	"strings"
)

// ButtonPress is a key press lircd decoded and broadcast to its clients.
type ButtonPress struct {
	// Code is the decoded scancode. Its use is deprecated by lircd.
	Code uint64
	// RepeatCount counts the repeats of a held button, starting at 0.
	RepeatCount uint
	// ButtonName is the key name from lircd.conf.
	ButtonName string
	// RemoteControlName is the remote name from lircd.conf.
	RemoteControlName string
}

// CommandReply is the packet lircd answers a command with.
type CommandReply struct {
	// Command echoes the command line that was sent.
	Command string
	Success bool
	Data    []string
}

// Name returns the command word of the echoed command line.
func (r CommandReply) Name() string {
	name, _, _ := strings.Cut(r.Command, " ")
	return name
}

// ErrUnsuccessfulCommand is returned with a reply when lircd reports an
// error.
var ErrUnsuccessfulCommand = errors.New("lirc: unsuccessful command")
