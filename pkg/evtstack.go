package merger

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EvtStack chains the split trigger files of one run into a single record
// stream. The DAQ rolls over to a new file every 2 GB, so records continue
// seamlessly from one file to the next.
type EvtStack struct {
	paths      []string
	current    *EvtFile
	index      int
	totalBytes int64
	bytesRead  int64
	dropped    uint64
}

func OpenEvtStack(dir string) (*EvtStack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	stack := &EvtStack{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.Contains(name, "run-") || !strings.HasSuffix(name, ".evt") {
			continue
		}
		stack.paths = append(stack.paths, filepath.Join(dir, name))
	}
	if len(stack.paths) == 0 {
		return nil, ErrNoMatchingFiles
	}
	sort.Strings(stack.paths)
	for _, path := range stack.paths {
		stat, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		stack.totalBytes += stat.Size()
	}
	return stack, nil
}

// NextItem returns the next ring record across the file splits, or io.EOF
// once every file is exhausted.
func (s *EvtStack) NextItem() (RingItem, error) {
	for {
		if s.current == nil {
			if s.index >= len(s.paths) {
				return RingItem{}, io.EOF
			}
			file, err := OpenEvtFile(s.paths[s.index])
			if err != nil {
				return RingItem{}, err
			}
			s.current = file
			s.index++
		}
		item, err := s.current.NextItem()
		if err == io.EOF {
			s.dropped += s.current.Dropped()
			closeErr := s.current.Close()
			s.current = nil
			if closeErr != nil {
				return RingItem{}, closeErr
			}
			continue
		}
		if err != nil {
			return RingItem{}, err
		}
		s.bytesRead += int64(item.Size)
		return item, nil
	}
}

func (s *EvtStack) TotalBytes() int64 {
	return s.totalBytes
}

func (s *EvtStack) BytesRead() int64 {
	return s.bytesRead
}

func (s *EvtStack) Dropped() uint64 {
	if s.current != nil {
		return s.dropped + s.current.Dropped()
	}
	return s.dropped
}

func (s *EvtStack) Close() error {
	if s.current == nil {
		return nil
	}
	s.dropped += s.current.Dropped()
	err := s.current.Close()
	s.current = nil
	return err
}

// ScalersHandler receives periodic scaler readouts as the trigger stream is
// consumed.
type ScalersHandler func(ScalersItem) error

// TriggerStream consumes ring records from an EvtStack and yields trigger
// records in order, dispatching scaler readouts to a handler and keeping the
// begin/end run bookkeeping on the side.
type TriggerStream struct {
	stack    *EvtStack
	handler  ScalersHandler
	info     RunInfo
	sawBegin bool
	sawEnd   bool
	dropped  uint64
}

func NewTriggerStream(stack *EvtStack, handler ScalersHandler) *TriggerStream {
	return &TriggerStream{stack: stack, handler: handler}
}

// NextTrigger returns the next trigger record. The end-run record terminates
// the stream with io.EOF even if more bytes follow in the files.
func (t *TriggerStream) NextTrigger() (TriggerRecord, error) {
	if t.sawEnd {
		return TriggerRecord{}, io.EOF
	}
	for {
		item, err := t.stack.NextItem()
		if err != nil {
			return TriggerRecord{}, err
		}
		switch item.Type {
		case ringBeginRun:
			begin, err := decodeBeginRun(item)
			if err != nil {
				return TriggerRecord{}, &FormatError{Stream: "trigger", Reason: err.Error()}
			}
			t.info.Begin = begin
			t.sawBegin = true
			logger.Info(t.info.PrintBegin(), "trigger")
		case ringEndRun:
			end, err := decodeEndRun(item)
			if err != nil {
				return TriggerRecord{}, &FormatError{Stream: "trigger", Reason: err.Error()}
			}
			t.info.End = end
			t.sawEnd = true
			logger.Info(t.info.PrintEnd(), "trigger")
			return TriggerRecord{}, io.EOF
		case ringScalers:
			scalers, err := decodeScalers(item)
			if err != nil {
				t.dropped++
				continue
			}
			if t.handler != nil {
				if err := t.handler(scalers); err != nil {
					return TriggerRecord{}, err
				}
			}
		case ringTrigger:
			record, err := decodeTriggerRecord(item)
			if err != nil {
				t.dropped++
				continue
			}
			return record, nil
		case ringDummy:
		default:
			t.dropped++
		}
	}
}

func (t *TriggerStream) RunInfo() (RunInfo, bool) {
	return t.info, t.sawBegin
}

func (t *TriggerStream) SawEnd() bool {
	return t.sawEnd
}

func (t *TriggerStream) Dropped() uint64 {
	return t.dropped + t.stack.Dropped()
}

func (t *TriggerStream) TotalBytes() int64 {
	return t.stack.TotalBytes()
}

func (t *TriggerStream) BytesRead() int64 {
	return t.stack.BytesRead()
}

func (t *TriggerStream) Close() error {
	return t.stack.Close()
}
