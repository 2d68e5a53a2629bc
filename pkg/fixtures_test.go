package merger

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// frameSpec describes one graw frame for the binary encoders.
type frameSpec struct {
	cobo      uint8
	asad      uint8
	aget      uint8
	channel   uint8
	eventID   uint32
	timestamp uint64
	flags     uint16
	samples   []int16
}

func encodeFrame(spec frameSpec) []byte {
	payload := new(bytes.Buffer)
	binary.Write(payload, binary.LittleEndian, spec.samples)

	header := FrameHeader{
		FrameType:   ExpectedFrameType,
		HeaderSize:  FrameHeaderSize,
		FrameSize:   uint32(FrameHeaderSize) + 2*uint32(len(spec.samples)),
		CoboID:      spec.cobo,
		AsadID:      spec.asad,
		AgetID:      spec.aget,
		Channel:     spec.channel,
		EventID:     spec.eventID,
		Timestamp:   spec.timestamp,
		SampleCount: uint16(len(spec.samples)),
		Flags:       spec.flags,
		Checksum:    crc32.ChecksumIEEE(payload.Bytes()),
	}
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.LittleEndian, header)
	buffer.Write(payload.Bytes())
	return buffer.Bytes()
}

func writeGrawFile(t *testing.T, dir string, name string, specs ...frameSpec) string {
	t.Helper()
	buffer := new(bytes.Buffer)
	for _, spec := range specs {
		buffer.Write(encodeFrame(spec))
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buffer.Bytes(), 0644))
	return path
}

func encodeRingItem(itemType uint32, payload []byte) []byte {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.LittleEndian, uint32(8+len(payload)))
	binary.Write(buffer, binary.LittleEndian, itemType)
	buffer.Write(payload)
	return buffer.Bytes()
}

func encodeBeginRun(run uint32, start uint32, title string) []byte {
	payload := new(bytes.Buffer)
	binary.Write(payload, binary.LittleEndian, run)
	binary.Write(payload, binary.LittleEndian, start)
	payload.WriteString(title)
	return encodeRingItem(ringBeginRun, payload.Bytes())
}

func encodeEndRun(stop uint32, elapsed uint32) []byte {
	payload := new(bytes.Buffer)
	binary.Write(payload, binary.LittleEndian, stop)
	binary.Write(payload, binary.LittleEndian, elapsed)
	return encodeRingItem(ringEndRun, payload.Bytes())
}

func encodeScalers(startOffset uint32, stopOffset uint32, timestamp uint32, incremental uint32, data []uint32) []byte {
	payload := new(bytes.Buffer)
	binary.Write(payload, binary.LittleEndian, startOffset)
	binary.Write(payload, binary.LittleEndian, stopOffset)
	binary.Write(payload, binary.LittleEndian, timestamp)
	binary.Write(payload, binary.LittleEndian, incremental)
	binary.Write(payload, binary.LittleEndian, uint32(len(data)))
	binary.Write(payload, binary.LittleEndian, data)
	return encodeRingItem(ringScalers, payload.Bytes())
}

func encodeTrigger(eventID uint32, timestamp uint64, liveTime uint32, deadTime uint32, scalers []uint32) []byte {
	payload := new(bytes.Buffer)
	binary.Write(payload, binary.LittleEndian, eventID)
	binary.Write(payload, binary.LittleEndian, timestamp)
	binary.Write(payload, binary.LittleEndian, liveTime)
	binary.Write(payload, binary.LittleEndian, deadTime)
	binary.Write(payload, binary.LittleEndian, uint32(len(scalers)))
	binary.Write(payload, binary.LittleEndian, scalers)
	return encodeRingItem(ringTrigger, payload.Bytes())
}

func writeEvtFile(t *testing.T, dir string, name string, records ...[]byte) string {
	t.Helper()
	buffer := new(bytes.Buffer)
	for _, record := range records {
		buffer.Write(record)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buffer.Bytes(), 0644))
	return path
}

const testPadMapCSV = `cobo,asad,aget,channel,pad,plane,row,column
0,0,0,5,100,0,3,7
0,0,0,6,101,0,3,8
0,0,1,5,200,0,4,7
1,0,0,5,300,1,5,7
1,1,2,33,400,1,6,2
`

func testPadMap(t *testing.T) *PadMap {
	t.Helper()
	pm, err := parsePadMap(testPadMapCSV, "test")
	require.NoError(t, err)
	return pm
}

func writeTestPadMap(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "padmap.csv")
	require.NoError(t, os.WriteFile(path, []byte(testPadMapCSV), 0644))
	return path
}

// sliceFrames feeds pre-built frames to the correlator.
type sliceFrames struct {
	frames []*GrawFrame
}

func (s *sliceFrames) NextFrame() (*GrawFrame, error) {
	if len(s.frames) == 0 {
		return nil, io.EOF
	}
	frame := s.frames[0]
	s.frames = s.frames[1:]
	return frame, nil
}

// sliceTriggers feeds pre-built trigger records to the correlator.
type sliceTriggers struct {
	records []TriggerRecord
}

func (s *sliceTriggers) NextTrigger() (TriggerRecord, error) {
	if len(s.records) == 0 {
		return TriggerRecord{}, io.EOF
	}
	record := s.records[0]
	s.records = s.records[1:]
	return record, nil
}

func testFrame(channel uint8, eventID uint32, timestamp uint64) *GrawFrame {
	samples := []int16{1, 2, 3, 4}
	return &GrawFrame{
		Header: FrameHeader{
			FrameType:   ExpectedFrameType,
			HeaderSize:  FrameHeaderSize,
			FrameSize:   uint32(FrameHeaderSize) + 2*uint32(len(samples)),
			Channel:     channel,
			EventID:     eventID,
			Timestamp:   timestamp,
			SampleCount: uint16(len(samples)),
		},
		Samples: samples,
	}
}
