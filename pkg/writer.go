package merger

import (
	"errors"
	"fmt"
	"os"

	hdf5 "github.com/jmbenlloch/go-hdf5"
)

const (
	// Per-trace metadata columns before the samples: cobo, asad, aget,
	// channel, pad, plane, row, column, saturated.
	traceMetaColumns   = 9
	traceMatrixColumns = traceMetaColumns + NumTimeBuckets

	// MaxScalerChannels fixes the scaler matrix width.
	MaxScalerChannels = 32
)

// Writer streams correlated events into an HDF5 file. Everything goes to a
// temporary path; the file only appears under its final name when Finalize
// renames it, so a crashed merge never leaves a plausible-looking output.
type Writer struct {
	file      *hdf5.File
	finalPath string
	tempPath  string

	runGroup     *hdf5.Group
	eventsGroup  *hdf5.Group
	scalersGroup *hdf5.Group

	runInfoTable   *hdf5.Dataset
	countersTable  *hdf5.Dataset
	fribInfoTable  *hdf5.Dataset
	eventTable     *hdf5.Dataset
	traceMatrix    *hdf5.Dataset
	triggerScalers *hdf5.Dataset
	scalersTable   *hdf5.Dataset
	scalerData     *hdf5.Dataset

	evtCounter    int
	traceCounter  int
	scalerCounter int
	finalized     bool
}

func NewWriter(path string, runNumber int, session string, padMapVersion string, window uint64, policy OrphanPolicy) (*Writer, error) {
	// Set string size for HDF5
	hdf5.SetStringLength(STRLEN)

	w := &Writer{
		finalPath: path,
		tempPath:  path + ".tmp",
	}
	var err error
	if w.file, err = openFile(w.tempPath); err != nil {
		return nil, &WriteError{Path: w.tempPath, Op: "create file", Err: err}
	}
	fail := func(op string, err error) (*Writer, error) {
		w.file.Close()
		os.Remove(w.tempPath)
		return nil, &WriteError{Path: w.tempPath, Op: op, Err: err}
	}
	if w.runGroup, err = createGroup(w.file, "run"); err != nil {
		return fail("create run group", err)
	}
	if w.eventsGroup, err = createGroup(w.file, "events"); err != nil {
		return fail("create events group", err)
	}
	if w.scalersGroup, err = createGroup(w.file, "scalers"); err != nil {
		return fail("create scalers group", err)
	}
	if w.runInfoTable, err = createTable(w.runGroup, "runInfo", RunInfoHDF5{}); err != nil {
		return fail("create runInfo table", err)
	}
	if w.countersTable, err = createTable(w.runGroup, "counters", CountersHDF5{}); err != nil {
		return fail("create counters table", err)
	}
	if w.fribInfoTable, err = createTable(w.runGroup, "fribInfo", FribInfoHDF5{}); err != nil {
		return fail("create fribInfo table", err)
	}
	if w.eventTable, err = createTable(w.eventsGroup, "events", EventDataHDF5{}); err != nil {
		return fail("create event table", err)
	}
	if w.traceMatrix, err = createMatrix(w.eventsGroup, "traces", traceMatrixColumns, hdf5.T_NATIVE_INT16); err != nil {
		return fail("create trace matrix", err)
	}
	if w.triggerScalers, err = createMatrix(w.eventsGroup, "triggerScalers", MaxScalerChannels, hdf5.T_NATIVE_UINT32); err != nil {
		return fail("create trigger scalers matrix", err)
	}
	if w.scalersTable, err = createTable(w.scalersGroup, "scalers", ScalersHDF5{}); err != nil {
		return fail("create scalers table", err)
	}
	if w.scalerData, err = createMatrix(w.scalersGroup, "data", MaxScalerChannels, hdf5.T_NATIVE_UINT32); err != nil {
		return fail("create scaler data matrix", err)
	}

	info := RunInfoHDF5{
		run_number:    int32(runNumber),
		match_window:  int32(window),
		orphan_policy: convertToHdf5String(string(policy)),
		pad_map:       convertToHdf5String(padMapVersion),
		session:       convertToHdf5String(session),
	}
	if err := writeEntryToTable(w.runInfoTable, info, 0); err != nil {
		return fail("write runInfo", err)
	}
	return w, nil
}

func (w *Writer) WriteEvent(event *CorrelatedEvent) error {
	entry := EventDataHDF5{
		evt_number:  int64(event.ID),
		trigger_id:  -1,
		timestamp:   event.Timestamp,
		n_traces:    int32(len(event.Traces)),
		first_trace: int64(w.traceCounter),
	}
	scalers := make([]uint32, MaxScalerChannels)
	if event.Trigger != nil {
		entry.trigger_id = int32(event.Trigger.EventID)
		entry.live_time = event.Trigger.LiveTime
		entry.dead_time = event.Trigger.DeadTime
		for i, value := range event.Trigger.Scalers {
			if i >= MaxScalerChannels {
				break
			}
			scalers[i] = value
		}
	} else {
		entry.orphan = 1
	}

	for _, trace := range event.Traces {
		row := make([]int16, traceMatrixColumns)
		row[0] = int16(trace.Address.CoboID)
		row[1] = int16(trace.Address.AsadID)
		row[2] = int16(trace.Address.AgetID)
		row[3] = int16(trace.Address.Channel)
		row[4] = int16(trace.Entry.PadID)
		row[5] = int16(trace.Entry.Plane)
		row[6] = int16(trace.Entry.Row)
		row[7] = int16(trace.Entry.Column)
		if trace.Saturated {
			row[8] = 1
		}
		copy(row[traceMetaColumns:], trace.Samples)
		if err := writeMatrixRow(w.traceMatrix, &row, w.traceCounter, traceMatrixColumns); err != nil {
			return &WriteError{Path: w.tempPath, Op: "write trace", Err: err}
		}
		w.traceCounter++
	}

	if err := writeMatrixRow(w.triggerScalers, &scalers, w.evtCounter, MaxScalerChannels); err != nil {
		return &WriteError{Path: w.tempPath, Op: "write trigger scalers", Err: err}
	}
	if err := writeEntryToTable(w.eventTable, entry, w.evtCounter); err != nil {
		return &WriteError{Path: w.tempPath, Op: "write event", Err: err}
	}
	w.evtCounter++
	return nil
}

func (w *Writer) WriteScalers(item ScalersItem) error {
	entry := ScalersHDF5{
		start_offset: int32(item.StartOffset),
		stop_offset:  int32(item.StopOffset),
		timestamp:    int32(item.Timestamp),
		incremental:  int32(item.Incremental),
	}
	data := make([]uint32, MaxScalerChannels)
	for i, value := range item.Data {
		if i >= MaxScalerChannels {
			break
		}
		data[i] = value
	}
	if err := writeEntryToTable(w.scalersTable, entry, w.scalerCounter); err != nil {
		return &WriteError{Path: w.tempPath, Op: "write scalers", Err: err}
	}
	if err := writeMatrixRow(w.scalerData, &data, w.scalerCounter, MaxScalerChannels); err != nil {
		return &WriteError{Path: w.tempPath, Op: "write scaler data", Err: err}
	}
	w.scalerCounter++
	return nil
}

func (w *Writer) WriteTriggerRunInfo(info RunInfo) error {
	entry := FribInfoHDF5{
		run_number: int32(info.Begin.Run),
		start_time: int32(info.Begin.Start),
		stop_time:  int32(info.End.Stop),
		elapsed:    int32(info.End.Elapsed),
		title:      convertToHdf5String(info.Begin.Title),
	}
	if err := writeEntryToTable(w.fribInfoTable, entry, 0); err != nil {
		return &WriteError{Path: w.tempPath, Op: "write fribInfo", Err: err}
	}
	return nil
}

func (w *Writer) Events() int {
	return w.evtCounter
}

// Finalize writes the merge counters, closes the file and renames it into
// place. The rename is the only step that makes the output visible.
func (w *Writer) Finalize(counters RunCounters) error {
	entry := CountersHDF5{
		trigger_events:  int64(counters.TriggerEvents),
		orphan_events:   int64(counters.OrphanEvents),
		frames_decoded:  int64(counters.FramesDecoded),
		frames_matched:  int64(counters.FramesMatched),
		frames_orphaned: int64(counters.FramesOrphaned),
		fpn_rejected:    int64(counters.FPNRejected),
		unmapped:        int64(counters.UnmappedChannels),
		frames_dropped:  int64(counters.FramesDropped),
		ring_dropped:    int64(counters.RingDropped),
		first_stamp:     counters.FirstStamp,
		last_stamp:      counters.LastStamp,
	}
	if err := writeEntryToTable(w.countersTable, entry, 0); err != nil {
		return &WriteError{Path: w.tempPath, Op: "write counters", Err: err}
	}
	if err := w.closeAll(); err != nil {
		return &WriteError{Path: w.tempPath, Op: "close", Err: err}
	}
	if err := os.Rename(w.tempPath, w.finalPath); err != nil {
		return &WriteError{Path: w.finalPath, Op: "rename", Err: err}
	}
	w.finalized = true
	return nil
}

// Abort discards the temporary file. Safe to call after Finalize.
func (w *Writer) Abort() {
	if w.finalized {
		return
	}
	w.closeAll()
	os.Remove(w.tempPath)
}

func (w *Writer) closeAll() error {
	if w.file == nil {
		return nil
	}
	var errs []error
	closers := []struct {
		name  string
		close func() error
	}{
		{"runInfo table", w.runInfoTable.Close},
		{"counters table", w.countersTable.Close},
		{"fribInfo table", w.fribInfoTable.Close},
		{"event table", w.eventTable.Close},
		{"trace matrix", w.traceMatrix.Close},
		{"trigger scalers matrix", w.triggerScalers.Close},
		{"scalers table", w.scalersTable.Close},
		{"scaler data matrix", w.scalerData.Close},
		{"run group", w.runGroup.Close},
		{"events group", w.eventsGroup.Close},
		{"scalers group", w.scalersGroup.Close},
		{"file", w.file.Close},
	}
	for _, c := range closers {
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s: %w", c.name, err))
		}
	}
	w.file = nil
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
