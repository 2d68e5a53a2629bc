package merger

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTriggerRecord(t *testing.T) {
	raw := encodeTrigger(7, 123456, 1000, 50, []uint32{1, 2, 3})
	item := RingItem{Size: uint32(len(raw)), Type: ringTrigger, Bytes: raw[8:]}
	record, err := decodeTriggerRecord(item)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), record.EventID)
	assert.Equal(t, uint64(123456), record.Timestamp)
	assert.Equal(t, uint32(1000), record.LiveTime)
	assert.Equal(t, uint32(50), record.DeadTime)
	assert.Equal(t, []uint32{1, 2, 3}, record.Scalers)
}

func TestDecodeTriggerRecordShort(t *testing.T) {
	_, err := decodeTriggerRecord(RingItem{Bytes: []byte{1, 2, 3}})
	require.Error(t, err)
}

func TestDecodeScalers(t *testing.T) {
	raw := encodeScalers(0, 10, 42, 1, []uint32{5, 6})
	item := RingItem{Size: uint32(len(raw)), Type: ringScalers, Bytes: raw[8:]}
	scalers, err := decodeScalers(item)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), scalers.StopOffset)
	assert.Equal(t, uint32(42), scalers.Timestamp)
	assert.Equal(t, []uint32{5, 6}, scalers.Data)
}

func TestDecodeBeginRun(t *testing.T) {
	raw := encodeBeginRun(128, 1700000000, "test beam")
	item := RingItem{Size: uint32(len(raw)), Type: ringBeginRun, Bytes: raw[8:]}
	begin, err := decodeBeginRun(item)
	require.NoError(t, err)
	assert.Equal(t, uint32(128), begin.Run)
	assert.Equal(t, uint32(1700000000), begin.Start)
	assert.Equal(t, "test beam", begin.Title)
}

func TestEvtStackCrossesFileSplits(t *testing.T) {
	dir := t.TempDir()
	writeEvtFile(t, dir, "run-0128-00.evt",
		encodeBeginRun(128, 100, "split run"),
		encodeTrigger(1, 1000, 10, 1, nil),
	)
	writeEvtFile(t, dir, "run-0128-01.evt",
		encodeTrigger(2, 2000, 20, 2, nil),
		encodeEndRun(200, 100),
	)

	stack, err := OpenEvtStack(dir)
	require.NoError(t, err)
	defer stack.Close()

	var types []uint32
	for {
		item, err := stack.NextItem()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		types = append(types, item.Type)
	}
	assert.Equal(t, []uint32{ringBeginRun, ringTrigger, ringTrigger, ringEndRun}, types)
	assert.Equal(t, stack.TotalBytes(), stack.BytesRead())
}

func TestEvtStackIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	writeEvtFile(t, dir, "notes.txt", encodeEndRun(1, 1))
	_, err := OpenEvtStack(dir)
	assert.Equal(t, ErrNoMatchingFiles, err)
}

func TestTriggerStreamDispatch(t *testing.T) {
	dir := t.TempDir()
	writeEvtFile(t, dir, "run-0042-00.evt",
		encodeBeginRun(42, 100, "dispatch"),
		encodeRingItem(ringDummy, nil),
		encodeScalers(0, 10, 5, 1, []uint32{7}),
		encodeTrigger(1, 1000, 10, 1, []uint32{9}),
		encodeRingItem(99, []byte{1, 2, 3, 4}),
		encodeTrigger(2, 2000, 20, 2, nil),
		encodeEndRun(200, 100),
		// Records after the end-run marker are not read
		encodeTrigger(3, 3000, 30, 3, nil),
	)

	stack, err := OpenEvtStack(dir)
	require.NoError(t, err)

	var scalers []ScalersItem
	stream := NewTriggerStream(stack, func(item ScalersItem) error {
		scalers = append(scalers, item)
		return nil
	})
	defer stream.Close()

	first, err := stream.NextTrigger()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), first.EventID)

	second, err := stream.NextTrigger()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), second.EventID)

	_, err = stream.NextTrigger()
	assert.Equal(t, io.EOF, err)
	assert.True(t, stream.SawEnd())

	info, ok := stream.RunInfo()
	require.True(t, ok)
	assert.Equal(t, uint32(42), info.Begin.Run)
	assert.Equal(t, "dispatch", info.Begin.Title)
	assert.Equal(t, uint32(100), info.End.Elapsed)

	require.Len(t, scalers, 1)
	assert.Equal(t, []uint32{7}, scalers[0].Data)

	// The unknown ring type was counted
	assert.Equal(t, uint64(1), stream.Dropped())
}
