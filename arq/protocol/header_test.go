package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIHeader(t *testing.T) {
	require := require.New(t)
	hdr := NewIHdr(0, 5, 3)
	require.Equal(KindI, hdr.Kind())
	require.Equal(uint8(5), hdr.NS())
	require.Equal(uint8(3), hdr.NR())
	require.False(hdr.Command())
	require.False(hdr.PF())
	require.True(hdr.WithPF().PF())
	require.Equal("I(ns=5,nr=3)", hdr.String())
	require.Equal(Hdr{0x01, 0x6A}, hdr)
}

func TestSHeader(t *testing.T) {
	require := require.New(t)
	hdr := NewSHdr(1, SREJ, 7, true)
	require.Equal(KindS, hdr.Kind())
	require.Equal(SREJ, hdr.Type())
	require.Equal(uint8(7), hdr.NR())
	require.Equal(uint8(1), hdr.Addr())
	require.True(hdr.Command())
	require.Equal("REJ(nr=7)", hdr.String())

	rr := NewSHdr(0, SRR, 2, false)
	require.Equal(SRR, rr.Type())
	require.Equal(Hdr{0x01, 0x41}, rr)
}

func TestUHeader(t *testing.T) {
	require := require.New(t)
	for typ, name := range uNames {
		hdr := NewUHdr(0, typ, true)
		require.Equal(KindU, hdr.Kind())
		require.Equal(typ, hdr.Type())
		require.Equal(name, hdr.String())
		require.True(hdr.Command())
	}
	require.Equal(Hdr{0x03, 0x2F}, NewUHdr(0, USABM, true))
}

func TestParseHeader(t *testing.T) {
	require := require.New(t)
	_, ok := ParseHdr([]byte{0x01})
	require.False(ok)
	_, ok = ParseHdr([]byte{0x00, 0x00})
	require.False(ok)
	hdr, ok := ParseHdr([]byte{0x03, 0x63, 0xFF})
	require.True(ok)
	require.Equal(UUA, hdr.Type())
}

func TestSeqDistance(t *testing.T) {
	require := require.New(t)
	require.Equal(uint8(0), SeqDistance(3, 3))
	require.Equal(uint8(2), SeqDistance(6, 0))
	require.Equal(uint8(7), SeqDistance(1, 0))
}
