package protocol

const (
	// u8 Address + u8 Control
	HdrSize = 2
	// Sequence numbers are 3 bits wide
	SeqModulo = 8
	SeqMask   = SeqModulo - 1
	// Largest window a 3 bit sequence space can carry
	MaxWindow = SeqModulo - 1
)

const (
	// Extended address bit, always set on single byte addresses
	AddrEA uint8 = 0x01
	// Command/response bit
	AddrCR uint8 = 0x02
	// Poll/final bit in the control byte
	CtrlPF uint8 = 0x10
)

type FrameKind uint8

const (
	KindI FrameKind = iota
	KindS
	KindU
)

func (k FrameKind) String() string {
	switch k {
	case KindI:
		return "I"
	case KindS:
		return "S"
	}
	return "U"
}

// Supervisory frame types, control bits 2-3
const (
	// Receive ready, acknowledges frames up to N(R)
	SRR uint8 = 0x00
	// Receive not ready
	SRNR uint8 = 0x04
	// Reject, requests retransmission starting at N(R)
	SREJ uint8 = 0x08
)

// Unnumbered frame types, control bits 2-3 and 5-7
const (
	// Request a connection, resets sequence numbers
	USABM uint8 = 0x2C
	// Acknowledges SABM and DISC
	UUA uint8 = 0x60
	// Request a disconnect
	UDISC uint8 = 0x40
	// Disconnected mode, sent when a frame arrives on a closed link
	UDM uint8 = 0x0C
	// Frame reject, peer sent an invalid N(R)
	UFRMR uint8 = 0x84
)

const (
	sTypeMask uint8 = 0x0C
	uTypeMask uint8 = 0xEC
)

var uNames = map[uint8]string{
	USABM: "SABM",
	UUA:   "UA",
	UDISC: "DISC",
	UDM:   "DM",
	UFRMR: "FRMR",
}

var sNames = map[uint8]string{
	SRR:  "RR",
	SRNR: "RNR",
	SREJ: "REJ",
}
