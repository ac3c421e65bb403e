package lirc

// Command is a command lircd understands.
type Command interface {
	// EncodeCommand returns the command word followed by its arguments.
	EncodeCommand() []string
}

// SetInputLog makes lircd log every received pulse and space to Path in the
// mode2(1) format. An empty Path stops logging.
type SetInputLog struct {
	Path string
}

// EncodeCommand implements the [Command] interface.
func (s SetInputLog) EncodeCommand() []string {
	if s.Path == "" {
		return []string{"SET_INPUTLOG"}
	}
	return []string{"SET_INPUTLOG", s.Path}
}

// Version asks lircd for its version.
type Version struct{}

// EncodeCommand implements the [Command] interface.
func (Version) EncodeCommand() []string {
	return []string{"VERSION"}
}
