package irrelay

// Command is the message a controller receives: a pulse train to transmit
// and the sequence number it was issued under.
type Command struct {
	Data     []int `json:"data"`
	Sequence int64 `json:"sequence"`
}

// Status is the message a controller reports back.
type Status struct {
	LastCommandSequenceNumber int64 `json:"last_command_sequence_number"`
}
