package merger

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Ring item type tags used by the trigger DAQ.
const (
	ringBeginRun uint32 = 1
	ringEndRun   uint32 = 2
	ringDummy    uint32 = 12
	ringScalers  uint32 = 20
	ringTrigger  uint32 = 30
)

const (
	// ringHeaderSize is the self-delimiting prefix: size + type tag.
	ringHeaderSize uint32 = 8
	// maxRingSize bounds the self-reported record length.
	maxRingSize uint32 = 1 << 20
)

// RingItem is one self-delimited record from the trigger stream. The payload
// interpretation depends on the type tag.
type RingItem struct {
	Size  uint32
	Type  uint32
	Bytes []byte
}

// BeginRunItem carries the run number, start time and title of the run.
type BeginRunItem struct {
	Run   uint32
	Start uint32
	Title string
}

// EndRunItem carries the run stop time and the elapsed seconds. It doubles
// as the end-of-stream marker.
type EndRunItem struct {
	Stop    uint32
	Elapsed uint32
}

// RunInfo groups the begin and end records of one run.
type RunInfo struct {
	Begin BeginRunItem
	End   EndRunItem
}

func (r RunInfo) PrintBegin() string {
	return fmt.Sprintf("run number: %d title: %q", r.Begin.Run, r.Begin.Title)
}

func (r RunInfo) PrintEnd() string {
	return fmt.Sprintf("run number: %d elapsed time: %ds", r.Begin.Run, r.End.Elapsed)
}

// ScalersItem is a periodic scaler readout between triggers.
type ScalersItem struct {
	StartOffset uint32
	StopOffset  uint32
	Timestamp   uint32
	Incremental uint32
	Data        []uint32
}

// TriggerRecord is one acquisition trigger: event counter, timestamp in
// clock ticks, live/dead-time counters and the per-trigger scaler values.
type TriggerRecord struct {
	EventID   uint32
	Timestamp uint64
	LiveTime  uint32
	DeadTime  uint32
	Scalers   []uint32
}

func decodeBeginRun(item RingItem) (BeginRunItem, error) {
	var fixed struct {
		Run   uint32
		Start uint32
	}
	reader := bytes.NewReader(item.Bytes)
	if err := binary.Read(reader, binary.LittleEndian, &fixed); err != nil {
		return BeginRunItem{}, fmt.Errorf("begin-run record too short: %w", err)
	}
	title := strings.TrimRight(string(item.Bytes[8:]), "\x00")
	return BeginRunItem{Run: fixed.Run, Start: fixed.Start, Title: title}, nil
}

func decodeEndRun(item RingItem) (EndRunItem, error) {
	var info EndRunItem
	reader := bytes.NewReader(item.Bytes)
	if err := binary.Read(reader, binary.LittleEndian, &info); err != nil {
		return EndRunItem{}, fmt.Errorf("end-run record too short: %w", err)
	}
	return info, nil
}

func decodeScalers(item RingItem) (ScalersItem, error) {
	var fixed struct {
		StartOffset uint32
		StopOffset  uint32
		Timestamp   uint32
		Incremental uint32
		Count       uint32
	}
	reader := bytes.NewReader(item.Bytes)
	if err := binary.Read(reader, binary.LittleEndian, &fixed); err != nil {
		return ScalersItem{}, fmt.Errorf("scaler record too short: %w", err)
	}
	if uint32(reader.Len()) < 4*fixed.Count {
		return ScalersItem{}, fmt.Errorf("scaler record claims %d values, %d bytes left", fixed.Count, reader.Len())
	}
	info := ScalersItem{
		StartOffset: fixed.StartOffset,
		StopOffset:  fixed.StopOffset,
		Timestamp:   fixed.Timestamp,
		Incremental: fixed.Incremental,
		Data:        make([]uint32, fixed.Count),
	}
	if err := binary.Read(reader, binary.LittleEndian, info.Data); err != nil {
		return ScalersItem{}, err
	}
	return info, nil
}

func decodeTriggerRecord(item RingItem) (TriggerRecord, error) {
	var fixed struct {
		EventID   uint32
		Timestamp uint64
		LiveTime  uint32
		DeadTime  uint32
		Count     uint32
	}
	reader := bytes.NewReader(item.Bytes)
	if err := binary.Read(reader, binary.LittleEndian, &fixed); err != nil {
		return TriggerRecord{}, fmt.Errorf("trigger record too short: %w", err)
	}
	if uint32(reader.Len()) < 4*fixed.Count {
		return TriggerRecord{}, fmt.Errorf("trigger record claims %d scalers, %d bytes left", fixed.Count, reader.Len())
	}
	record := TriggerRecord{
		EventID:   fixed.EventID,
		Timestamp: fixed.Timestamp,
		LiveTime:  fixed.LiveTime,
		DeadTime:  fixed.DeadTime,
		Scalers:   make([]uint32, fixed.Count),
	}
	if err := binary.Read(reader, binary.LittleEndian, record.Scalers); err != nil {
		return TriggerRecord{}, err
	}
	return record, nil
}
