package handshake

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
)

// Field limits enforced on decode.
const (
	MaxStringLength = 16 * 1024
	MaxBytesLength  = 4 * 1024
)

// writer appends handshake fields to a buffer. The first error sticks.
type writer struct {
	buf bytes.Buffer
	err error
}

func (w *writer) byte(b byte) {
	if w.err == nil {
		w.err = w.buf.WriteByte(b)
	}
}

func (w *writer) bool(v bool) {
	if v {
		w.byte(1)
	} else {
		w.byte(0)
	}
}

func (w *writer) raw(b []byte) {
	if w.err == nil {
		_, w.err = w.buf.Write(b)
	}
}

func (w *writer) bytes(b []byte) {
	if w.err == nil && len(b) > MaxBytesLength {
		w.err = fmt.Errorf("%w: %d byte field", ErrFieldTooLong, len(b))
	}
	w.raw(varint.ToUvarint(uint64(len(b))))
	w.raw(b)
}

func (w *writer) string(s string) {
	if w.err == nil && len(s) > MaxStringLength {
		w.err = fmt.Errorf("%w: %d byte string", ErrFieldTooLong, len(s))
	}
	w.raw(varint.ToUvarint(uint64(len(s))))
	if w.err == nil {
		_, w.err = w.buf.WriteString(s)
	}
}

func (w *writer) uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.raw(b[:])
}

func (w *writer) finish() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}

// reader consumes handshake fields. The first error sticks and is wrapped
// in ErrMalformedMessage.
type reader struct {
	r   *bytes.Reader
	err error
}

func newReader(data []byte) *reader {
	return &reader{r: bytes.NewReader(data)}
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
}

func (r *reader) byte() byte {
	if r.err != nil {
		return 0
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.fail(err)
	}
	return b
}

func (r *reader) bool() bool {
	switch b := r.byte(); b {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail(fmt.Errorf("invalid bool %#x", b))
		return false
	}
}

func (r *reader) raw(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n > r.r.Len() {
		r.fail(io.ErrUnexpectedEOF)
		return nil
	}
	b := make([]byte, n)
	_, _ = r.r.Read(b)
	return b
}

func (r *reader) length(limit int) int {
	if r.err != nil {
		return 0
	}
	n, err := varint.ReadUvarint(r.r)
	if err != nil {
		r.fail(err)
		return 0
	}
	if n > uint64(limit) {
		r.fail(fmt.Errorf("field length %d exceeds %d", n, limit))
		return 0
	}
	return int(n)
}

func (r *reader) bytes() []byte {
	return r.raw(r.length(MaxBytesLength))
}

func (r *reader) string() string {
	return string(r.raw(r.length(MaxStringLength)))
}

func (r *reader) uint64() uint64 {
	b := r.raw(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// done returns the sticky error, or an error if bytes are left over.
func (r *reader) done() error {
	if r.err == nil && r.r.Len() > 0 {
		r.fail(fmt.Errorf("%d trailing bytes", r.r.Len()))
	}
	return r.err
}
