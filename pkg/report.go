package merger

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/maps"
)

// RunState tracks a run through the merge pipeline.
type RunState int

const (
	RunPending RunState = iota
	RunOpening
	RunCopying
	RunMerging
	RunFinalizing
	RunDone
	RunFailed
)

func (s RunState) String() string {
	switch s {
	case RunPending:
		return "pending"
	case RunOpening:
		return "opening"
	case RunCopying:
		return "copying"
	case RunMerging:
		return "merging"
	case RunFinalizing:
		return "finalizing"
	case RunDone:
		return "done"
	case RunFailed:
		return "failed"
	}
	return fmt.Sprintf("RunState(%d)", int(s))
}

// RunCounters accumulates the per-run merge statistics written into the
// output file and reported at the end of the session.
type RunCounters struct {
	TriggerEvents    uint64
	OrphanEvents     uint64
	FramesDecoded    uint64
	FramesMatched    uint64
	FramesOrphaned   uint64
	FPNRejected      uint64
	UnmappedChannels uint64
	FramesDropped    uint64
	RingDropped      uint64
	FirstStamp       uint64
	LastStamp        uint64
}

// RunResult is the terminal outcome of one run.
type RunResult struct {
	RunNumber int
	State     RunState
	Err       error
	Counters  RunCounters
}

// SessionReport collects every run's outcome for one invocation.
type SessionReport struct {
	SessionID string
	Results   map[int]RunResult
}

func NewSessionReport(sessionID string) SessionReport {
	return SessionReport{SessionID: sessionID, Results: make(map[int]RunResult)}
}

func (r SessionReport) FailedRuns() []int {
	var failed []int
	for run, result := range r.Results {
		if result.State == RunFailed {
			failed = append(failed, run)
		}
	}
	sort.Ints(failed)
	return failed
}

func (r SessionReport) AllDone() bool {
	for _, result := range r.Results {
		if result.State != RunDone {
			return false
		}
	}
	return true
}

// Aggregate sums the counters of the runs that finished.
func (r SessionReport) Aggregate() RunCounters {
	var total RunCounters
	for _, result := range r.Results {
		if result.State != RunDone {
			continue
		}
		total.TriggerEvents += result.Counters.TriggerEvents
		total.OrphanEvents += result.Counters.OrphanEvents
		total.FramesDecoded += result.Counters.FramesDecoded
		total.FramesMatched += result.Counters.FramesMatched
		total.FramesOrphaned += result.Counters.FramesOrphaned
		total.FPNRejected += result.Counters.FPNRejected
		total.UnmappedChannels += result.Counters.UnmappedChannels
		total.FramesDropped += result.Counters.FramesDropped
		total.RingDropped += result.Counters.RingDropped
	}
	return total
}

func (r SessionReport) Summary() string {
	runs := maps.Keys(r.Results)
	sort.Ints(runs)
	var b strings.Builder
	fmt.Fprintf(&b, "session %s: %d runs", r.SessionID, len(runs))
	for _, run := range runs {
		result := r.Results[run]
		fmt.Fprintf(&b, "\n  run %d: %s", run, result.State)
		if result.Err != nil {
			fmt.Fprintf(&b, " (%v)", result.Err)
		}
	}
	return b.String()
}

// Progress is a coarse per-run progress notification, measured as the
// fraction of input bytes consumed.
type Progress struct {
	RunNumber int
	Stage     RunState
	Percent   float64
}
