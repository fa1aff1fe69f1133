package hdlc

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"hdlc-toolkit/checksum"

	"github.com/stretchr/testify/require"
	gohdlc "github.com/zaninime/go-hdlc"
)

// CRC-16 framing is RFC 1662 framing, so frames must be readable by an
// independent PPP-style implementation and the other way around.
var interopPayloads = [][]byte{
	[]byte("hello"),
	{0x7E, 0x01, 0x7D, 0x02, 0x20},
	{0x00, 0x11, 0x13, 0xFE},
}

func TestInteropEncode(t *testing.T) {
	require := require.New(t)
	var wire []byte
	for _, p := range interopPayloads {
		wire = AppendFrame(wire, p, checksum.CRC16)
	}

	dec := gohdlc.NewDecoder(bytes.NewReader(wire))
	for _, p := range interopPayloads {
		var frame *gohdlc.Frame
		// Back-to-back flags may be reported as empty frames
		for i := 0; i < 4 && (frame == nil || len(frame.Payload) == 0); i++ {
			var err error
			frame, err = dec.ReadFrame()
			require.False(errors.Is(err, io.EOF), "frame %x not found", p)
			if err != nil {
				frame = nil
			}
		}
		require.NotNil(frame)
		require.Equal(p, frame.Payload)
	}
}

func TestInteropDecode(t *testing.T) {
	require := require.New(t)
	var wire bytes.Buffer
	enc := gohdlc.NewEncoder(&wire)
	for _, p := range interopPayloads {
		_, err := enc.WriteFrame(gohdlc.Encapsulate(p, false))
		require.Nil(err)
	}

	// A leading flag makes sure the first frame is opened
	b := append([]byte{Flag}, wire.Bytes()...)
	dec := NewDecoder(64, checksum.CRC16)
	var got [][]byte
	for len(b) > 0 {
		n, payload, err := dec.Consume(b)
		require.Nil(err)
		b = b[n:]
		if payload != nil {
			got = append(got, append([]byte(nil), payload...))
		}
	}
	require.Equal(interopPayloads, got)
}
