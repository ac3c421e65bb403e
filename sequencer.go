package irrelay

// Sequencer admits commands with strictly increasing sequence numbers. It
// rejects duplicates and anything older than the last admitted command.
//
// The zero value is ready to use and admits any sequence greater than 0.
// A Sequencer is not safe for concurrent use.
type Sequencer struct {
	last int64
}

// Accept reports whether seq is newer than every previously admitted
// sequence, and if so records it.
func (s *Sequencer) Accept(seq int64) bool {
	if seq <= s.last {
		return false
	}
	s.last = seq
	return true
}

// Last returns the highest admitted sequence number.
func (s *Sequencer) Last() int64 { return s.last }
