package merger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// ClockFrequency is the shared timestamp clock of both acquisition systems,
// in ticks per second.
const ClockFrequency = 100_000_000

// RunContext bundles everything a merge session needs besides the run
// numbers themselves.
type RunContext struct {
	Config   Configuration
	PadMap   *PadMap
	Progress chan<- Progress
}

// OpenPadMap loads the pad map from the CSV file or from the database,
// depending on the configuration.
func OpenPadMap(config Configuration) (*PadMap, error) {
	if config.PadMapFromDB {
		db, err := ConnectToDatabase(config.User, config.Passwd, config.Host, config.DBName)
		if err != nil {
			return nil, &PadMapLoadError{Source: config.Host, Err: err}
		}
		defer db.Close()
		return LoadPadMapFromDB(db, config.FirstRunNumber)
	}
	return LoadPadMap(config.PadMapPath)
}

// RunSession merges every run in the configured range. Run failures are
// isolated: one bad run is recorded in the report and the rest proceed.
func RunSession(ctx context.Context, rc RunContext) (SessionReport, error) {
	if err := rc.Config.Validate(); err != nil {
		return SessionReport{}, err
	}
	session := uuid.NewString()
	report := NewSessionReport(session)
	logger.Info(fmt.Sprintf("starting session %s, runs %d to %d", session,
		rc.Config.FirstRunNumber, rc.Config.LastRunNumber), "session")

	runs := rc.Config.LastRunNumber - rc.Config.FirstRunNumber + 1
	workers := rc.Config.NumWorkers
	if workers > runs {
		workers = runs
	}

	jobs := make(chan int, workers)
	results := make(chan RunResult, runs)
	for w := 1; w <= workers; w++ {
		go runWorker(ctx, w, rc, session, jobs, results)
	}
	go func() {
		for run := rc.Config.FirstRunNumber; run <= rc.Config.LastRunNumber; run++ {
			jobs <- run
		}
		close(jobs)
	}()

	for i := 0; i < runs; i++ {
		result := <-results
		report.Results[result.RunNumber] = result
		if result.State == RunFailed {
			logger.Error(fmt.Sprintf("run %d failed: %v", result.RunNumber, result.Err))
		} else {
			logger.Info(fmt.Sprintf("run %d merged, %d trigger events", result.RunNumber,
				result.Counters.TriggerEvents), "session")
		}
	}
	return report, nil
}

func runWorker(ctx context.Context, id int, rc RunContext, session string, jobs <-chan int, results chan<- RunResult) {
	for run := range jobs {
		results <- mergeRunGuarded(ctx, id, rc, session, run)
	}
}

// mergeRunGuarded converts a panic while merging one run into a failed
// result instead of taking the whole session down.
func mergeRunGuarded(ctx context.Context, id int, rc RunContext, session string, run int) (result RunResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Sprintf("worker %d recovered from panic on run %d: %v", id, run, r))
			result = RunResult{RunNumber: run, State: RunFailed, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return mergeRun(ctx, rc, session, run)
}

// frameGate sits between the frame merger and the correlator: it checks for
// session cancellation on every read so a stalled mount cannot block a run
// past the next frame, and applies the detector selection.
type frameGate struct {
	ctx     context.Context
	src     FrameSource
	attpc   bool
	silicon bool
}

func (g frameGate) NextFrame() (*GrawFrame, error) {
	for {
		if err := g.ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := g.src.NextFrame()
		if err != nil {
			return nil, err
		}
		if frame.Header.CoboID >= CoboOfSilicon {
			if !g.silicon {
				continue
			}
		} else if !g.attpc {
			continue
		}
		return frame, nil
	}
}

type triggerGate struct {
	ctx context.Context
	src TriggerSource
}

func (g triggerGate) NextTrigger() (TriggerRecord, error) {
	if err := g.ctx.Err(); err != nil {
		return TriggerRecord{}, err
	}
	return g.src.NextTrigger()
}

func mergeRun(ctx context.Context, rc RunContext, session string, run int) RunResult {
	fail := func(err error) RunResult {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = &CancelledError{RunNumber: run}
		}
		return RunResult{RunNumber: run, State: RunFailed, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	rc.reportProgress(run, RunOpening, 0)

	frameDirs := existingDirs(rc.Config.ElectronicsRunDirs(run))
	if len(frameDirs) == 0 {
		return fail(&SourceNotFoundError{RunNumber: run, Path: rc.Config.ElectronicsRunDirs(run)[0]})
	}
	triggerDir := rc.Config.TriggerRunDir(run)
	if _, err := os.Stat(triggerDir); err != nil {
		return fail(&SourceNotFoundError{RunNumber: run, Path: triggerDir})
	}

	if rc.Config.NeedCopyFiles() {
		copier, err := NewFileCopier(rc.Config, run)
		if err != nil {
			return fail(err)
		}
		rc.reportProgress(run, RunCopying, 0)
		total := copier.TotalBytes()
		err = copier.Copy(ctx, func(done int64) {
			if total > 0 {
				rc.reportProgress(run, RunCopying, 100*float64(done)/float64(total))
			}
		})
		if err != nil {
			return fail(err)
		}
		logger.Info(fmt.Sprintf("run %d staged locally, %d bytes", run, total), "copy")
		frameDirs = copier.GrawDirs()
		triggerDir = copier.EvtDir()
		if len(frameDirs) == 0 {
			return fail(&EmptyStreamError{RunNumber: run, Stream: "electronics"})
		}
	}

	frames, err := NewFrameMerger(frameDirs)
	if err != nil {
		if err == ErrNoMatchingFiles {
			return fail(&EmptyStreamError{RunNumber: run, Stream: "electronics"})
		}
		return fail(err)
	}
	defer frames.Close()

	stack, err := OpenEvtStack(triggerDir)
	if err != nil {
		if err == ErrNoMatchingFiles {
			return fail(&EmptyStreamError{RunNumber: run, Stream: "trigger"})
		}
		return fail(err)
	}

	writer, err := NewWriter(rc.Config.OutputFilePath(run), run, session,
		rc.PadMap.Version(), uint64(rc.Config.MatchWindowTicks), rc.Config.OrphanPolicy)
	if err != nil {
		stack.Close()
		return fail(err)
	}
	defer writer.Abort()

	triggers := NewTriggerStream(stack, writer.WriteScalers)
	defer triggers.Close()

	gatedFrames := frameGate{
		ctx:     ctx,
		src:     frames,
		attpc:   rc.Config.MergeATTPC,
		silicon: rc.Config.MergeSilicon,
	}
	correlator := NewCorrelator(run, gatedFrames, triggerGate{ctx: ctx, src: triggers}, rc.PadMap, CorrelatorConfig{
		Window:    uint64(rc.Config.MatchWindowTicks),
		Policy:    rc.Config.OrphanPolicy,
		BufferCap: rc.Config.FrameBufferCap,
	})

	totalBytes := frames.TotalBytes() + triggers.TotalBytes()
	var firstStamp, lastStamp uint64
	haveStamp := false
	merged := 0
	for {
		event, err := correlator.NextEvent()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(err)
		}
		if !haveStamp {
			firstStamp = event.Timestamp
			haveStamp = true
		}
		if event.Timestamp > lastStamp {
			lastStamp = event.Timestamp
		}
		if err := writer.WriteEvent(event); err != nil {
			return fail(err)
		}
		merged++
		if merged%256 == 0 {
			if totalBytes > 0 {
				read := frames.BytesRead() + triggers.BytesRead()
				rc.reportProgress(run, RunMerging, 100*float64(read)/float64(totalBytes))
			}
		}
	}

	if info, ok := triggers.RunInfo(); ok {
		if err := writer.WriteTriggerRunInfo(info); err != nil {
			return fail(err)
		}
	}

	counters := RunCounters{
		TriggerEvents:    correlator.TriggerEvents(),
		OrphanEvents:     correlator.OrphanEvents(),
		FramesDecoded:    frames.Decoded(),
		FramesMatched:    correlator.FramesMatched(),
		FramesOrphaned:   correlator.FramesOrphaned(),
		FPNRejected:      correlator.FPNRejected(),
		UnmappedChannels: correlator.UnmappedChannels(),
		FramesDropped:    frames.Dropped(),
		RingDropped:      triggers.Dropped(),
		FirstStamp:       firstStamp,
		LastStamp:        lastStamp,
	}

	rc.reportProgress(run, RunFinalizing, 100)
	if err := writer.Finalize(counters); err != nil {
		return fail(err)
	}

	if haveStamp && lastStamp > firstStamp {
		seconds := float64(lastStamp-firstStamp) / ClockFrequency
		logger.Info(fmt.Sprintf("run %d spans %.1f s of beam time", run, seconds), "merge")
	}
	rc.reportProgress(run, RunDone, 100)
	return RunResult{RunNumber: run, State: RunDone, Counters: counters}
}

func existingDirs(dirs []string) []string {
	var found []string
	for _, dir := range dirs {
		if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
			found = append(found, dir)
		}
	}
	return found
}

func (rc RunContext) reportProgress(run int, stage RunState, percent float64) {
	if rc.Progress == nil {
		return
	}
	select {
	case rc.Progress <- Progress{RunNumber: run, Stage: stage, Percent: percent}:
	default:
	}
}
