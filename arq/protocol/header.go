package protocol

import "fmt"

// Hdr is the fixed width address and control prefix of every frame.
type Hdr [HdrSize]byte

func address(addr uint8, command bool) uint8 {
	a := addr<<2 | AddrEA
	if command {
		a |= AddrCR
	}
	return a
}

func NewIHdr(addr, ns, nr uint8) Hdr {
	return Hdr{address(addr, false), (nr&SeqMask)<<5 | (ns&SeqMask)<<1}
}

func NewSHdr(addr, typ, nr uint8, command bool) Hdr {
	return Hdr{address(addr, command), (nr&SeqMask)<<5 | typ&sTypeMask | 0x01}
}

func NewUHdr(addr, typ uint8, command bool) Hdr {
	return Hdr{address(addr, command), typ&uTypeMask | 0x03}
}

func ParseHdr(b []byte) (Hdr, bool) {
	var hdr Hdr
	if len(b) < HdrSize {
		return hdr, false
	}
	copy(hdr[:], b)
	return hdr, hdr[0]&AddrEA != 0
}

func (hdr Hdr) Addr() uint8 {
	return hdr[0] >> 2
}

func (hdr Hdr) Command() bool {
	return hdr[0]&AddrCR != 0
}

func (hdr Hdr) Kind() FrameKind {
	switch {
	case hdr[1]&0x01 == 0:
		return KindI
	case hdr[1]&0x03 == 0x01:
		return KindS
	}
	return KindU
}

func (hdr Hdr) NS() uint8 {
	return hdr[1] >> 1 & SeqMask
}

func (hdr Hdr) NR() uint8 {
	return hdr[1] >> 5 & SeqMask
}

func (hdr Hdr) PF() bool {
	return hdr[1]&CtrlPF != 0
}

func (hdr Hdr) WithPF() Hdr {
	hdr[1] |= CtrlPF
	return hdr
}

// Type returns the S or U frame type, zero for I-frames.
func (hdr Hdr) Type() uint8 {
	switch hdr.Kind() {
	case KindS:
		return hdr[1] & sTypeMask
	case KindU:
		return hdr[1] & uTypeMask
	}
	return 0
}

func (hdr Hdr) String() string {
	switch hdr.Kind() {
	case KindI:
		return fmt.Sprintf("I(ns=%d,nr=%d)", hdr.NS(), hdr.NR())
	case KindS:
		name, ok := sNames[hdr.Type()]
		if !ok {
			name = fmt.Sprintf("S%#02x", hdr.Type())
		}
		return fmt.Sprintf("%s(nr=%d)", name, hdr.NR())
	}
	if name, ok := uNames[hdr.Type()]; ok {
		return name
	}
	return fmt.Sprintf("U%#02x", hdr.Type())
}

// SeqDistance returns how many steps b is ahead of a in the sequence space.
func SeqDistance(a, b uint8) uint8 {
	return (b - a) & SeqMask
}
