// Package persist stores version logs on disk through pluggable codecs.
package persist

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// File extensions for supported codecs.
const (
	jsonExtension = ".json"
	gobExtension  = ".gob"
	lz4Extension  = ".lz4"
)

// Codec names accepted by CodecByName.
const (
	CodecJSON = "json"
	CodecGob  = "gob"
	CodecLZ4  = "lz4"
)

const defaultIndent = "  "

// ErrUnknownCodec is returned by CodecByName for an unsupported name.
var ErrUnknownCodec = errors.New("unknown codec")

// Codec defines how state is serialized and deserialized.
type Codec interface {
	Encode(w io.Writer, state any) error
	Decode(r io.Reader, state any) error
	// Extension returns the file suffix including the dot, e.g. ".json".
	Extension() string
}

// CodecByName maps a configuration value to a codec.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case CodecJSON, "":
		return NewJSONCodec(), nil
	case CodecGob:
		return NewGobCodec(), nil
	case CodecLZ4:
		return NewLZ4Codec(&JSONCodec{}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// JSONCodec writes JSON, pretty-printed unless Indent is empty.
type JSONCodec struct {
	Indent string
}

// NewJSONCodec creates a JSON codec with a two-space indent.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// Encode implements Codec.
func (c *JSONCodec) Encode(w io.Writer, state any) error {
	encoder := json.NewEncoder(w)
	if c.Indent != "" {
		encoder.SetIndent("", c.Indent)
	}

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.
func (c *JSONCodec) Decode(r io.Reader, state any) error {
	err := json.NewDecoder(r).Decode(state)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.
func (c *JSONCodec) Extension() string {
	return jsonExtension
}

// GobCodec implements Codec with encoding/gob. Zero values are not
// transmitted by gob, so an empty literal decodes as absent.
type GobCodec struct{}

// NewGobCodec creates a gob codec.
func NewGobCodec() *GobCodec {
	return &GobCodec{}
}

// Encode implements Codec.
func (c *GobCodec) Encode(w io.Writer, state any) error {
	err := gob.NewEncoder(w).Encode(state)
	if err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}

	return nil
}

// Decode implements Codec.
func (c *GobCodec) Decode(r io.Reader, state any) error {
	err := gob.NewDecoder(r).Decode(state)
	if err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}

	return nil
}

// Extension implements Codec.
func (c *GobCodec) Extension() string {
	return gobExtension
}

// LZ4Codec compresses the output of an inner codec with the LZ4 frame format.
type LZ4Codec struct {
	Inner Codec
}

// NewLZ4Codec wraps inner. A nil inner codec means compact JSON.
func NewLZ4Codec(inner Codec) *LZ4Codec {
	if inner == nil {
		inner = &JSONCodec{}
	}

	return &LZ4Codec{Inner: inner}
}

// Encode implements Codec.
func (c *LZ4Codec) Encode(w io.Writer, state any) error {
	zw := lz4.NewWriter(w)

	err := c.Inner.Encode(zw, state)
	if err != nil {
		return err
	}

	err = zw.Close()
	if err != nil {
		return fmt.Errorf("lz4 close: %w", err)
	}

	return nil
}

// Decode implements Codec.
func (c *LZ4Codec) Decode(r io.Reader, state any) error {
	return c.Inner.Decode(lz4.NewReader(r), state)
}

// Extension implements Codec. The inner extension is kept, e.g. ".json.lz4".
func (c *LZ4Codec) Extension() string {
	return c.Inner.Extension() + lz4Extension
}

// Plain returns a reader over the uncompressed inner encoding.
func (c *LZ4Codec) Plain(r io.Reader) io.Reader {
	return lz4.NewReader(r)
}
