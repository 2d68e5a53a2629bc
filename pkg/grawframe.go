package merger

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	// ExpectedFrameType is the frame-type tag every graw frame carries.
	ExpectedFrameType uint16 = 0x0008
	// FrameHeaderSize is the fixed header length in bytes.
	FrameHeaderSize uint16 = 32
	// NumTimeBuckets is the maximum trace length of one channel readout.
	NumTimeBuckets = 512
	// MaxFrameSize bounds the self-reported frame length.
	MaxFrameSize = uint32(FrameHeaderSize) + 2*NumTimeBuckets

	saturationFlag uint16 = 0x0001
)

// FrameHeader is the fixed graw frame header layout. It is decoded directly
// with binary.Read, so field order and widths must match the wire format.
type FrameHeader struct {
	FrameType   uint16
	HeaderSize  uint16
	FrameSize   uint32
	CoboID      uint8
	AsadID      uint8
	AgetID      uint8
	Channel     uint8
	EventID     uint32
	Timestamp   uint64
	SampleCount uint16
	Flags       uint16
	Checksum    uint32
}

// GrawFrame is one channel's digitized trace at one acquisition instant.
type GrawFrame struct {
	Header  FrameHeader
	Samples []int16
}

func (f *GrawFrame) Address() HardwareAddress {
	return HardwareAddress{
		CoboID:  f.Header.CoboID,
		AsadID:  f.Header.AsadID,
		AgetID:  f.Header.AgetID,
		Channel: f.Header.Channel,
	}
}

func (f *GrawFrame) Saturated() bool {
	return f.Header.Flags&saturationFlag != 0
}

// decodeFrameHeader parses and validates a raw header. The parsed header is
// returned even when validation fails so the caller can decide whether the
// length field is still usable for resynchronization.
func decodeFrameHeader(raw []byte) (FrameHeader, error) {
	var header FrameHeader
	if len(raw) < int(FrameHeaderSize) {
		return header, fmt.Errorf("header truncated: %d bytes", len(raw))
	}
	headerReader := bytes.NewReader(raw[:FrameHeaderSize])
	if err := binary.Read(headerReader, binary.LittleEndian, &header); err != nil {
		return header, err
	}

	if header.FrameType != ExpectedFrameType {
		return header, fmt.Errorf("incorrect frame type 0x%04x, expected 0x%04x", header.FrameType, ExpectedFrameType)
	}
	if header.HeaderSize != FrameHeaderSize {
		return header, fmt.Errorf("incorrect header size %d, expected %d", header.HeaderSize, FrameHeaderSize)
	}
	if header.SampleCount > NumTimeBuckets {
		return header, fmt.Errorf("sample count %d exceeds %d time buckets", header.SampleCount, NumTimeBuckets)
	}
	expectedSize := uint32(FrameHeaderSize) + 2*uint32(header.SampleCount)
	if header.FrameSize != expectedSize {
		return header, fmt.Errorf("incorrect frame size %d, expected %d", header.FrameSize, expectedSize)
	}
	return header, nil
}

// decodeFramePayload checks the payload CRC and unpacks the samples.
func decodeFramePayload(header FrameHeader, payload []byte) (*GrawFrame, error) {
	if len(payload) != 2*int(header.SampleCount) {
		return nil, fmt.Errorf("payload is %d bytes, expected %d", len(payload), 2*header.SampleCount)
	}
	if crc := crc32.ChecksumIEEE(payload); crc != header.Checksum {
		return nil, fmt.Errorf("CRC mismatch: computed 0x%08x, header says 0x%08x", crc, header.Checksum)
	}

	samples := make([]int16, header.SampleCount)
	payloadReader := bytes.NewReader(payload)
	if err := binary.Read(payloadReader, binary.LittleEndian, samples); err != nil {
		return nil, err
	}
	return &GrawFrame{Header: header, Samples: samples}, nil
}
