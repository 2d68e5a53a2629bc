package merger

import (
	"container/heap"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// FrameMerger produces one timestamp-ordered frame sequence from all graw
// files belonging to a run. Hardware modules write their files independently,
// so file order means nothing; the header timestamp is the sort key of a
// k-way merge across the per-file streams.
type FrameMerger struct {
	sources    frameHeap
	totalBytes int64
	bytesRead  int64
	decoded    uint64
	dropped    uint64
}

type frameSource struct {
	file *GrawFile
	next *GrawFrame
}

type frameHeap []*frameSource

func (h frameHeap) Len() int { return len(h) }
func (h frameHeap) Less(i, j int) bool {
	return h[i].next.Header.Timestamp < h[j].next.Header.Timestamp
}
func (h frameHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *frameHeap) Push(x any) {
	*h = append(*h, x.(*frameSource))
}

func (h *frameHeap) Pop() any {
	old := *h
	n := len(old)
	src := old[n-1]
	*h = old[:n-1]
	return src
}

// NewFrameMerger opens every .graw file under the given run directories.
// Directories that do not exist are skipped; if no file is found at all the
// merger returns ErrNoMatchingFiles.
func NewFrameMerger(dirs []string) (*FrameMerger, error) {
	var paths []string
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".graw") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			continue
		}
	}
	if len(paths) == 0 {
		return nil, ErrNoMatchingFiles
	}
	sort.Strings(paths)

	m := &FrameMerger{}
	for _, path := range paths {
		file, err := OpenGrawFile(path)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.totalBytes += file.SizeBytes()

		frame, err := file.NextFrame()
		if err == io.EOF {
			// Nothing usable in this file
			m.dropped += file.Dropped()
			file.Close()
			continue
		}
		if err != nil {
			file.Close()
			m.Close()
			return nil, err
		}
		m.sources = append(m.sources, &frameSource{file: file, next: frame})
	}
	heap.Init(&m.sources)
	logger.Info(fmt.Sprintf("merging %d graw files, %d bytes total", len(paths), m.totalBytes), "framemerger")
	return m, nil
}

// NextFrame returns the next frame in global timestamp order.
// Returns io.EOF once every source file is exhausted.
func (m *FrameMerger) NextFrame() (*GrawFrame, error) {
	for len(m.sources) > 0 {
		src := m.sources[0]
		frame := src.next

		next, err := src.file.NextFrame()
		switch {
		case err == io.EOF:
			m.dropped += src.file.Dropped()
			src.file.Close()
			heap.Pop(&m.sources)
		case err != nil:
			return nil, err
		default:
			src.next = next
			heap.Fix(&m.sources, 0)
		}

		m.decoded++
		m.bytesRead += int64(frame.Header.FrameSize)
		return frame, nil
	}
	return nil, io.EOF
}

// TotalBytes is the combined size of all source files, for progress reporting.
func (m *FrameMerger) TotalBytes() int64 {
	return m.totalBytes
}

// BytesRead is the number of frame bytes consumed so far.
func (m *FrameMerger) BytesRead() int64 {
	return m.bytesRead
}

// Decoded is the number of frames produced so far.
func (m *FrameMerger) Decoded() uint64 {
	return m.decoded
}

// Dropped is the number of corrupt frames skipped across all source files.
func (m *FrameMerger) Dropped() uint64 {
	dropped := m.dropped
	for _, src := range m.sources {
		dropped += src.file.Dropped()
	}
	return dropped
}

func (m *FrameMerger) Close() error {
	var errs []error
	for _, src := range m.sources {
		m.dropped += src.file.Dropped()
		if err := src.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.sources = nil
	if len(errs) > 0 {
		return fmt.Errorf("error closing graw files: %v", errs)
	}
	return nil
}
