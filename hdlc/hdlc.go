package hdlc

import (
	"errors"

	"hdlc-toolkit/checksum"
)

const (
	// Frame boundary
	Flag byte = 0x7E
	// Escape prefix for reserved bytes
	Escape byte = 0x7D
	// Mask XOR-ed into an escaped byte
	EscapeMask byte = 0x20
	// Idle line filler, ignored between frames
	Filler byte = 0xFF
)

var (
	ErrBusy          = errors.New("hdlc: frame transmission in progress")
	ErrChecksum      = errors.New("hdlc: checksum mismatch")
	ErrFrameTooLarge = errors.New("hdlc: frame exceeds receive buffer")
	ErrMalformed     = errors.New("hdlc: malformed frame")
)

func NeedsEscaping(b byte) bool {
	return b == Flag || b == Escape
}

// AppendEscaped appends src to dst, escaping flag and escape bytes.
func AppendEscaped(dst, src []byte) []byte {
	for _, b := range src {
		if NeedsEscaping(b) {
			dst = append(dst, Escape, b^EscapeMask)
		} else {
			dst = append(dst, b)
		}
	}
	return dst
}

// AppendUnescaped reverses AppendEscaped. An unescaped flag or an
// escape sequence cut short is reported as ErrMalformed.
func AppendUnescaped(dst, src []byte) ([]byte, error) {
	for i := 0; i < len(src); i++ {
		switch b := src[i]; b {
		case Flag:
			return dst, ErrMalformed
		case Escape:
			i++
			if i == len(src) || src[i] == Flag {
				return dst, ErrMalformed
			}
			dst = append(dst, src[i]^EscapeMask)
		default:
			dst = append(dst, b)
		}
	}
	return dst, nil
}

// AppendFrame appends FLAG | escaped(payload ++ checksum) | FLAG to dst.
func AppendFrame(dst, payload []byte, mode checksum.Mode) []byte {
	var fcs [4]byte
	dst = append(dst, Flag)
	dst = AppendEscaped(dst, payload)
	dst = AppendEscaped(dst, mode.Append(fcs[:0], payload))
	return append(dst, Flag)
}

// EncodedLen returns the worst case encoded size of a payload of n bytes.
func EncodedLen(n int, mode checksum.Mode) int {
	return 2*(n+mode.Size()) + 2
}

// DecodeFrame decodes a single complete frame, flags included.
// An empty body decodes to an empty payload when the checksum is off.
func DecodeFrame(frame []byte, mode checksum.Mode) ([]byte, error) {
	if len(frame) < 2 || frame[0] != Flag || frame[len(frame)-1] != Flag {
		return nil, ErrMalformed
	}
	body, err := AppendUnescaped(make([]byte, 0, len(frame)), frame[1:len(frame)-1])
	if err != nil {
		return nil, err
	}
	payload, ok := mode.Split(body)
	if !ok {
		return nil, ErrChecksum
	}
	return payload, nil
}
