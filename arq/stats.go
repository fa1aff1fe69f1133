package arq

import "time"

type Stats struct {
	State State
	// Data frames currently waiting for acknowledgment
	Outstanding int

	FramesSent     uint64
	FramesReceived uint64

	PacketsQueued    uint64
	PacketsConfirmed uint64
	PacketsDelivered uint64
	PacketsAbandoned uint64

	// Data frames sent more than once
	Retransmits uint64
	// SABM and DISC frames sent more than once
	ControlRetransmits uint64

	RejectsSent     uint64
	RejectsReceived uint64
	OutOfOrder      uint64
	// Frames carrying an N(R) that was already confirmed
	StaleFrames uint64

	ChecksumErrors  uint64
	OverflowErrors  uint64
	MalformedFrames uint64
	// Frames with a bad header or an unexpected address
	InvalidFrames uint64

	MinRTT      time.Duration
	SmoothedRTT time.Duration
	RTTVar      time.Duration
}
