package checkpoint

import (
	"encoding/gob"
	"encoding/json"
	"io"
)

// A Codec turns a state object into bytes and back.
//
// The format is entirely up to the Codec; the Store adds
// no header or version of its own.
type Codec interface {
	Encode(w io.Writer, state interface{}) error
	Decode(r io.Reader, state interface{}) error
}

// GobCodec encodes states with encoding/gob.
type GobCodec struct{}

func (GobCodec) Encode(w io.Writer, state interface{}) error {
	return gob.NewEncoder(w).Encode(state)
}

func (GobCodec) Decode(r io.Reader, state interface{}) error {
	return gob.NewDecoder(r).Decode(state)
}

// JSONCodec encodes states as JSON.
type JSONCodec struct{}

func (JSONCodec) Encode(w io.Writer, state interface{}) error {
	return json.NewEncoder(w).Encode(state)
}

func (JSONCodec) Decode(r io.Reader, state interface{}) error {
	return json.NewDecoder(r).Decode(state)
}
