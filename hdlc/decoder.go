package hdlc

import "hdlc-toolkit/checksum"

type decoderState uint8

const (
	stateInterFrame decoderState = iota
	stateFrame
	stateFrameEscape
)

type DecoderStats struct {
	Frames    uint64
	Checksum  uint64
	Overflow  uint64
	Malformed uint64
}

// Decoder accumulates inbound bytes into a fixed size receive buffer
// and yields checksum verified payloads.
type Decoder struct {
	mode  checksum.Mode
	buf   []byte
	size  int
	state decoderState
	stats DecoderStats
}

// NewDecoder allocates a receive buffer holding payloads of up to
// maxPayload bytes plus the checksum trailer.
func NewDecoder(maxPayload int, mode checksum.Mode) *Decoder {
	return NewDecoderBuffer(make([]byte, maxPayload+mode.Size()), mode)
}

// NewDecoderBuffer uses buf as the receive buffer. The buffer is owned
// by the decoder from now on.
func NewDecoderBuffer(buf []byte, mode checksum.Mode) *Decoder {
	return &Decoder{mode: mode, buf: buf}
}

func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// Reset discards any partially received frame.
func (d *Decoder) Reset() {
	d.size = 0
	d.state = stateInterFrame
}

// Consume feeds b into the decoder and stops after the first complete
// frame. It returns the number of bytes consumed and either a payload,
// a per-frame error, or neither when more bytes are needed. Errors are
// not fatal, the decoder has already resynchronized. The payload aliases
// the receive buffer and is valid until the next call.
func (d *Decoder) Consume(b []byte) (int, []byte, error) {
	for i, c := range b {
		switch d.state {
		case stateInterFrame:
			// Noise and filler bytes are skipped until a flag
			if c == Flag {
				d.size = 0
				d.state = stateFrame
			}
		case stateFrame:
			switch c {
			case Flag:
				// Repeated flags are an empty frame, keep waiting
				if d.size == 0 {
					continue
				}
				payload, err := d.finish()
				return i + 1, payload, err
			case Escape:
				d.state = stateFrameEscape
			default:
				d.append(c)
			}
		case stateFrameEscape:
			// The flag cannot be escaped. Treat it as the start of the next frame.
			if c == Flag {
				d.stats.Malformed++
				d.size = 0
				d.state = stateFrame
				return i + 1, nil, ErrMalformed
			}
			d.append(c ^ EscapeMask)
			d.state = stateFrame
		}
	}
	return len(b), nil, nil
}

func (d *Decoder) append(c byte) {
	if d.size < len(d.buf) {
		d.buf[d.size] = c
	}
	// Keep counting past the end so overflow is detected at the closing flag
	d.size++
}

func (d *Decoder) finish() ([]byte, error) {
	size := d.size
	d.size = 0
	d.state = stateInterFrame
	if size > len(d.buf) {
		d.stats.Overflow++
		return nil, ErrFrameTooLarge
	}
	payload, ok := d.mode.Split(d.buf[:size])
	if !ok {
		d.stats.Checksum++
		return nil, ErrChecksum
	}
	d.stats.Frames++
	return payload, nil
}
