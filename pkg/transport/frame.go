package transport

import (
	"encoding/binary"
	"io"
)

// Frame layout: u32 LE length of (kind + payload) || u8 kind || payload.
const (
	// FrameHeaderSize is the size of the length prefix.
	FrameHeaderSize = 4

	// MaxFrameSize bounds a single frame, kind byte included.
	MaxFrameSize = 1 << 20
)

// writeFrame writes one frame to w.
func writeFrame(w io.Writer, kind frameKind, payload []byte) error {
	if len(payload)+1 > MaxFrameSize {
		return ErrMessageTooLarge
	}

	buf := make([]byte, FrameHeaderSize+1+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)+1))
	buf[FrameHeaderSize] = byte(kind)
	copy(buf[FrameHeaderSize+1:], payload)

	_, err := w.Write(buf)
	return err
}

// readFrame reads one frame from r.
func readFrame(r io.Reader) (frameKind, []byte, error) {
	var hdr [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}

	n := binary.LittleEndian.Uint32(hdr[:])
	if n == 0 {
		return 0, nil, ErrInvalidFrame
	}
	if n > MaxFrameSize {
		return 0, nil, ErrMessageTooLarge
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}

	kind := frameKind(body[0])
	if kind != frameData && kind != frameDisconnect {
		return 0, nil, ErrInvalidFrame
	}
	return kind, body[1:], nil
}
