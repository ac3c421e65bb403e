// Package relay runs the command exchange between a backend and a controller
// node on top of a [transport.Transport].
package relay

import "encoding/json"

// Codec turns messages into datagram payloads and back. The channel is not
// encrypted; a Codec is the seam where a keyed transform would go.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec encodes messages as plain JSON.
type JSONCodec struct{}

// Marshal implements [Codec].
func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements [Codec].
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
