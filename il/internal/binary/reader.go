package binary

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when the code stream ends inside an immediate.
var ErrShortBuffer = errors.New("il: unexpected end of code")

// Reader walks a method body's code bytes with position tracking.
// All multi-byte immediates are fixed-width little-endian.
type Reader struct {
	r   *bytes.Reader
	pos int
}

// NewReader creates a new Reader over the given code bytes.
func NewReader(code []byte) *Reader {
	return &Reader{r: bytes.NewReader(code), pos: 0}
}

// Position returns the current byte position.
func (r *Reader) Position() int {
	return r.pos
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return r.r.Len()
}

// ReadByte reads a single byte and advances the position.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, r.wrapError(ErrShortBuffer)
	}
	r.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n > r.r.Len() {
		return nil, r.wrapError(ErrShortBuffer)
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf[i] = b
	}
	return buf, nil
}

// ReadI8 reads a signed byte.
func (r *Reader) ReadI8() (int8, error) {
	b, err := r.ReadByte()
	return int8(b), err
}

// ReadU16LE reads a little-endian uint16.
func (r *Reader) ReadU16LE() (uint16, error) {
	buf, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

// ReadU32LE reads a little-endian uint32 (fixed 4 bytes).
func (r *Reader) ReadU32LE() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadI32LE reads a little-endian int32.
func (r *Reader) ReadI32LE() (int32, error) {
	v, err := r.ReadU32LE()
	return int32(v), err
}

// ReadI64LE reads a little-endian int64.
func (r *Reader) ReadI64LE() (int64, error) {
	buf, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf)), nil
}

func (r *Reader) wrapError(err error) error {
	return fmt.Errorf("at position %d: %w", r.pos, err)
}

// ParseError represents an error during code decoding with position information.
type ParseError struct {
	Err      error
	Context  string
	Position int
}

func (e *ParseError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("il: %s at position %d: %v", e.Context, e.Position, e.Err)
	}
	return fmt.Sprintf("il: at position %d: %v", e.Position, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WrapError creates a ParseError with the current position.
func (r *Reader) WrapError(context string, err error) error {
	return &ParseError{
		Position: r.pos,
		Context:  context,
		Err:      err,
	}
}
