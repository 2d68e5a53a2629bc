package merger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterCommitsOnFinalize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run_0001.h5")

	w, err := NewWriter(path, 1, "session-a", "padmap.csv", 8, OrphanDrop)
	require.NoError(t, err)

	trigger := &TriggerRecord{EventID: 1, Timestamp: 1000, LiveTime: 10, DeadTime: 2, Scalers: []uint32{3, 4}}
	event := &CorrelatedEvent{
		ID:        0,
		Trigger:   trigger,
		Timestamp: 1000,
		Traces: []Trace{{
			Address:   HardwareAddress{CoboID: 0, AsadID: 0, AgetID: 0, Channel: 5},
			Entry:     PadMapEntry{PadID: 100, Plane: 0, Row: 3, Column: 7},
			Samples:   []int16{1, 2, 3},
			Saturated: true,
		}},
	}
	require.NoError(t, w.WriteEvent(event))
	require.NoError(t, w.WriteScalers(ScalersItem{Timestamp: 5, Data: []uint32{9}}))
	require.NoError(t, w.WriteTriggerRunInfo(RunInfo{
		Begin: BeginRunItem{Run: 1, Start: 100, Title: "commit test"},
		End:   EndRunItem{Stop: 200, Elapsed: 100},
	}))

	// Nothing is visible at the final path until the rename
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path + ".tmp")
	assert.NoError(t, err)

	require.NoError(t, w.Finalize(RunCounters{TriggerEvents: 1, FramesMatched: 1}))

	_, err = os.Stat(path)
	assert.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 1, w.Events())
}

func TestWriterAbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run_0002.h5")

	w, err := NewWriter(path, 2, "session-b", "padmap.csv", 8, OrphanEmit)
	require.NoError(t, err)

	event := &CorrelatedEvent{ID: 0, Timestamp: 50}
	require.NoError(t, w.WriteEvent(event))
	w.Abort()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriterFinalizeFailureLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run_0004.h5")

	w, err := NewWriter(path, 4, "session-d", "padmap.csv", 8, OrphanDrop)
	require.NoError(t, err)

	event := &CorrelatedEvent{
		ID:        0,
		Trigger:   &TriggerRecord{EventID: 1, Timestamp: 10},
		Timestamp: 10,
	}
	require.NoError(t, w.WriteEvent(event))

	// Pull the temp file out from under the writer so the commit rename fails
	require.NoError(t, os.Remove(path+".tmp"))

	err = w.Finalize(RunCounters{TriggerEvents: 1})
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "rename", writeErr.Op)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestWriterAbortAfterFinalizeKeepsOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run_0003.h5")

	w, err := NewWriter(path, 3, "session-c", "padmap.csv", 8, OrphanDrop)
	require.NoError(t, err)
	require.NoError(t, w.Finalize(RunCounters{}))
	w.Abort()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
