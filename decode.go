package irrelay

import (
	"errors"
	"fmt"
	"strings"
)

// FrameBytes is the size of a chained NEC frame: three command bytes, each
// followed by its complement, sent twice.
const FrameBytes = 12

const frameBits = FrameBytes * 8

// Code is a decoded chained NEC command.
type Code [3]byte

// String returns the code as hex bytes, e.g. "12 34 56".
func (c Code) String() string {
	return fmt.Sprintf("%02x %02x %02x", c[0], c[1], c[2])
}

// Bits returns the code as binary, most significant bit first, with the
// bytes separated by spaces.
func (c Code) Bits() string {
	var b strings.Builder
	for i, v := range c {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%08b", v)
	}
	return b.String()
}

// Sentinel errors matched by [DecodeError] through errors.Is.
var (
	ErrByteBoundary       = errors.New("irrelay: sync or filler not on a byte boundary")
	ErrUnexpectedPrelude  = errors.New("irrelay: expected short prelude mark")
	ErrUnexpectedData     = errors.New("irrelay: expected short or long data symbol")
	ErrFrameTooLong       = errors.New("irrelay: frame longer than 12 bytes")
	ErrRepeatMismatch     = errors.New("irrelay: repeated half of frame differs")
	ErrComplementMismatch = errors.New("irrelay: byte is not followed by its complement")
)

// DecodeErrorKind identifies why a frame was rejected.
type DecodeErrorKind uint8

const (
	ByteBoundaryViolation DecodeErrorKind = iota
	UnexpectedSymbolInPrelude
	UnexpectedSymbolInData
	FrameTooLong
	RedundancyMismatchRepeat
	RedundancyMismatchComplement
)

var kindErrors = [...]error{
	ByteBoundaryViolation:        ErrByteBoundary,
	UnexpectedSymbolInPrelude:    ErrUnexpectedPrelude,
	UnexpectedSymbolInData:       ErrUnexpectedData,
	FrameTooLong:                 ErrFrameTooLong,
	RedundancyMismatchRepeat:     ErrRepeatMismatch,
	RedundancyMismatchComplement: ErrComplementMismatch,
}

// DecodeError is returned by [Decode] when a frame is malformed.
type DecodeError struct {
	Kind DecodeErrorKind
	// Index is the offending symbol, or the offending frame byte for the
	// redundancy kinds.
	Index int
	// BitOffset is the number of data bits decoded when the error occurred.
	BitOffset int
	// Symbol is the offending symbol, if any.
	Symbol Symbol
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	switch e.Kind {
	case ByteBoundaryViolation:
		return fmt.Sprintf("%v: %v at symbol %d, bit %d", kindErrors[e.Kind], e.Symbol, e.Index, e.BitOffset)
	case UnexpectedSymbolInPrelude, UnexpectedSymbolInData:
		return fmt.Sprintf("%v: got %v at symbol %d", kindErrors[e.Kind], e.Symbol, e.Index)
	case FrameTooLong:
		return fmt.Sprintf("%v: extra bit at symbol %d", kindErrors[e.Kind], e.Index)
	case RedundancyMismatchRepeat, RedundancyMismatchComplement:
		return fmt.Sprintf("%v: frame byte %d", kindErrors[e.Kind], e.Index)
	default:
		return fmt.Sprintf("irrelay: decode error kind %d", e.Kind)
	}
}

// Unwrap returns the sentinel error for e.Kind.
func (e *DecodeError) Unwrap() error {
	if int(e.Kind) < len(kindErrors) {
		return kindErrors[e.Kind]
	}
	return nil
}

// Frame accumulates decoded bits, most significant bit first.
type Frame struct {
	bytes     [FrameBytes]byte
	bitOffset int
}

// Bytes returns the raw frame.
func (f *Frame) Bytes() [FrameBytes]byte { return f.bytes }

// BitOffset returns the number of bits written so far.
func (f *Frame) BitOffset() int { return f.bitOffset }

func (f *Frame) aligned() bool { return f.bitOffset%8 == 0 }

func (f *Frame) push(bit byte) bool {
	if f.bitOffset >= frameBits {
		return false
	}
	f.bytes[f.bitOffset/8] |= bit << (7 - f.bitOffset%8)
	f.bitOffset++
	return true
}

// validate checks the a !a b !b c !c a !a b !b c !c layout.
func (f *Frame) validate() error {
	b := &f.bytes
	for i := 0; i < FrameBytes/2; i += 2 {
		if b[i] != b[i+6] {
			return &DecodeError{Kind: RedundancyMismatchRepeat, Index: i + 6, BitOffset: f.bitOffset}
		}
		if b[i+1] != b[i+7] {
			return &DecodeError{Kind: RedundancyMismatchRepeat, Index: i + 7, BitOffset: f.bitOffset}
		}
		if b[i] != ^b[i+1] {
			return &DecodeError{Kind: RedundancyMismatchComplement, Index: i + 1, BitOffset: f.bitOffset}
		}
	}
	return nil
}

func (f *Frame) code() Code {
	return Code{f.bytes[0], f.bytes[2], f.bytes[4]}
}

type decodeState uint8

const (
	awaitingPrelude decodeState = iota
	awaitingData
)

// Decode reconstructs a frame from classified symbols and validates its
// redundancy. Every data bit must be preceded by a short prelude mark, and
// markers may only appear on byte boundaries. The first violation aborts
// decoding; there is no resynchronization.
func Decode(symbols []Symbol) (Code, error) {
	var f Frame
	state := awaitingPrelude

	for i, s := range symbols {
		if s.IsMarker() {
			if !f.aligned() {
				return Code{}, &DecodeError{Kind: ByteBoundaryViolation, Index: i, BitOffset: f.bitOffset, Symbol: s}
			}
			state = awaitingPrelude
			continue
		}

		switch state {
		case awaitingPrelude:
			if s != Short {
				return Code{}, &DecodeError{Kind: UnexpectedSymbolInPrelude, Index: i, BitOffset: f.bitOffset, Symbol: s}
			}
			state = awaitingData

		case awaitingData:
			var bit byte
			switch s {
			case Short:
				bit = 0
			case Long:
				bit = 1
			default:
				return Code{}, &DecodeError{Kind: UnexpectedSymbolInData, Index: i, BitOffset: f.bitOffset, Symbol: s}
			}
			if !f.push(bit) {
				return Code{}, &DecodeError{Kind: FrameTooLong, Index: i, BitOffset: f.bitOffset, Symbol: s}
			}
			state = awaitingPrelude
		}
	}

	if err := f.validate(); err != nil {
		return Code{}, err
	}
	return f.code(), nil
}

// DecodePulses classifies a raw pulse train and decodes it.
func DecodePulses(pulses []int) (Code, error) {
	return Decode(ClassifyAll(pulses))
}
