package latest

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec serialises an Entry for storage in a Provider.
type Codec interface {
	Name() string
	Encode(e Entry) ([]byte, error)
	Decode(b []byte) (Entry, error)
}

// NewCodec returns the codec registered under name.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "msgpack", "":
		return MsgpackCodec{}, nil
	case "cbor":
		return NewCBORCodec()
	case "json":
		return JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// MsgpackCodec encodes entries with vmihailenco/msgpack. The zero value is ready to use.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Encode(e Entry) ([]byte, error) {
	return msgpack.Marshal(e)
}

func (MsgpackCodec) Decode(b []byte) (Entry, error) {
	var e Entry
	err := msgpack.Unmarshal(b, &e)
	return e, err
}

// CBORCodec encodes entries with fxamacker/cbor. Construct with NewCBORCodec.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec builds a CBOR codec that writes timestamps as RFC 3339 strings
// and decodes nested maps as map[string]any, matching what JSON produces.
func NewCBORCodec() (CBORCodec, error) {
	eo := cbor.PreferredUnsortedEncOptions()
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBORCodec{}, err
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return CBORCodec{}, err
	}
	return CBORCodec{enc: em, dec: dm}, nil
}

func (CBORCodec) Name() string { return "cbor" }

func (c CBORCodec) Encode(e Entry) ([]byte, error) {
	return c.enc.Marshal(e)
}

func (c CBORCodec) Decode(b []byte) (Entry, error) {
	var e Entry
	err := c.dec.Unmarshal(b, &e)
	return e, err
}

// JSONCodec encodes entries with encoding/json. Useful when other tools read
// the Redis keys directly.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(e Entry) ([]byte, error) {
	return json.Marshal(e)
}

func (JSONCodec) Decode(b []byte) (Entry, error) {
	var e Entry
	err := json.Unmarshal(b, &e)
	return e, err
}
