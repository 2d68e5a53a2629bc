package merger

import (
	"errors"
	"fmt"
)

// ErrNoMatchingFiles is returned by the stream readers when a run directory
// exists but contains no usable source files.
var ErrNoMatchingFiles = errors.New("no matching files found")

// FormatError represents a structural violation in one of the input streams.
// Single-frame corruption is absorbed and counted by the readers; FormatError
// is reserved for conditions that make the stream untrustworthy as a whole,
// such as duplicate trigger event counters.
type FormatError struct {
	Stream string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format error in %s stream: %s", e.Stream, e.Reason)
}

// SourceNotFoundError represents a missing source directory for a run.
// It fails that run only, never the session.
type SourceNotFoundError struct {
	RunNumber int
	Path      string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source for run %d not found at %q", e.RunNumber, e.Path)
}

// PadMapLoadError represents a failure to load the pad map. No run can be
// merged without a valid map, so this is fatal to the whole session.
type PadMapLoadError struct {
	Source string
	Line   int
	Err    error
}

func (e *PadMapLoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("error loading pad map %q line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("error loading pad map %q: %v", e.Source, e.Err)
}

func (e *PadMapLoadError) Unwrap() error {
	return e.Err
}

// EmptyStreamError represents a run whose trigger stream produced no trigger
// records. Such a run is not mergeable.
type EmptyStreamError struct {
	RunNumber int
	Stream    string
}

func (e *EmptyStreamError) Error() string {
	return fmt.Sprintf("run %d has no records in the %s stream", e.RunNumber, e.Stream)
}

// BufferOverflowError represents a correlation buffer that hit its hard cap,
// which signals a pathological rate mismatch between the two streams.
type BufferOverflowError struct {
	Buffered int
	Cap      int
}

func (e *BufferOverflowError) Error() string {
	return fmt.Sprintf("correlation buffer overflow: %d frames buffered, cap is %d", e.Buffered, e.Cap)
}

// CopyError represents an I/O failure while staging a run's source files on
// local storage. It fails that run only.
type CopyError struct {
	Src string
	Dst string
	Err error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("error copying %q to %q: %v", e.Src, e.Dst, e.Err)
}

func (e *CopyError) Unwrap() error {
	return e.Err
}

// WriteError represents an I/O failure while writing or committing a run's
// output container.
type WriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("error during %s on output %q: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// CancelledError marks a run that was interrupted by session cancellation.
// Runs already finalized stay intact.
type CancelledError struct {
	RunNumber int
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("run %d cancelled before completion", e.RunNumber)
}
