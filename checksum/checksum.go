package checksum

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/sigurn/crc16"
	"github.com/sigurn/crc8"
)

// Mode selects the frame check sequence appended to every frame.
// Both ends of a link must use the same mode.
type Mode uint8

const (
	// No checksum, every frame verifies.
	Off Mode = iota
	// CRC-8 (poly 0x07)
	CRC8
	// CRC-16/X-25, the PPP FCS16
	CRC16
	// CRC-32 IEEE, the PPP FCS32
	CRC32
)

// Default mode used when a session config does not pick one.
const Default = CRC16

var ErrUnknownMode = errors.New("unknown checksum mode")

var (
	crc8Table  = crc8.MakeTable(crc8.CRC8)
	crc16Table = crc16.MakeTable(crc16.CRC16_X_25)
)

var modeNames = map[Mode]string{
	Off:   "off",
	CRC8:  "crc8",
	CRC16: "crc16",
	CRC32: "crc32",
}

// ParseMode accepts the names printed by Mode.String, plus the bare
// widths "0", "8", "16" and "32".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "0":
		return Off, nil
	case "crc8", "8":
		return CRC8, nil
	case "crc16", "16", "":
		return CRC16, nil
	case "crc32", "32":
		return CRC32, nil
	}
	return Off, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

func (m Mode) Valid() bool {
	return m <= CRC32
}

// Size returns the number of checksum bytes appended to a frame.
func (m Mode) Size() int {
	switch m {
	case CRC8:
		return 1
	case CRC16:
		return 2
	case CRC32:
		return 4
	}
	return 0
}

// Compute returns the checksum of data, zero-extended to 32 bits.
func (m Mode) Compute(data []byte) uint32 {
	switch m {
	case CRC8:
		return uint32(crc8.Checksum(data, crc8Table))
	case CRC16:
		return uint32(crc16.Checksum(data, crc16Table))
	case CRC32:
		return crc32.ChecksumIEEE(data)
	}
	return 0
}

func (m Mode) Verify(data []byte, sum uint32) bool {
	if m == Off {
		return true
	}
	return m.Compute(data) == sum
}

// Append computes the checksum of data and appends it to dst in
// little-endian order.
func (m Mode) Append(dst, data []byte) []byte {
	return m.Put(dst, m.Compute(data))
}

// Put appends an already computed checksum to dst in little-endian order.
func (m Mode) Put(dst []byte, sum uint32) []byte {
	switch m {
	case CRC8:
		return append(dst, byte(sum))
	case CRC16:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(sum))
		return append(dst, b[:]...)
	case CRC32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], sum)
		return append(dst, b[:]...)
	}
	return dst
}

// Split separates a frame body into payload and trailing checksum and
// reports whether the checksum matches. Bodies shorter than the checksum
// never verify.
func (m Mode) Split(body []byte) ([]byte, bool) {
	size := m.Size()
	if len(body) < size {
		return nil, false
	}
	payload, trailer := body[:len(body)-size], body[len(body)-size:]
	var sum uint32
	switch m {
	case CRC8:
		sum = uint32(trailer[0])
	case CRC16:
		sum = uint32(binary.LittleEndian.Uint16(trailer))
	case CRC32:
		sum = binary.LittleEndian.Uint32(trailer)
	}
	return payload, m.Verify(payload, sum)
}
