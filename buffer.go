package irrelay

// BufferCapacity is the number of pulses a controller can stage for a single
// transmission.
const BufferCapacity = 300

// PulseBuffer is a fixed-capacity staging area for a pulse train. It is
// overwritten wholesale by every Load and is not safe for concurrent use.
type PulseBuffer struct {
	data []int
	n    int
}

// NewPulseBuffer allocates a buffer holding at most capacity pulses.
func NewPulseBuffer(capacity int) *PulseBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &PulseBuffer{data: make([]int, capacity)}
}

// Cap returns the capacity of the buffer.
func (b *PulseBuffer) Cap() int { return len(b.data) }

// Len returns the number of staged pulses.
func (b *PulseBuffer) Len() int { return b.n }

// Pulses returns the staged pulses. The slice aliases the buffer and is only
// valid until the next Load.
func (b *PulseBuffer) Pulses() []int { return b.data[:b.n:b.n] }

// Load copies src into the buffer in order. If src does not fit, Load stops
// at the capacity boundary, reports overflow and leaves the buffer empty, so
// a truncated train is never staged.
func (b *PulseBuffer) Load(src []int) (written int, overflow bool) {
	b.n = 0
	for i, v := range src {
		if i >= len(b.data) {
			return 0, true
		}
		b.data[i] = v
	}
	b.n = len(src)
	return b.n, false
}
