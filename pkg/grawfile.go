package merger

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// GrawFile reads graw frames sequentially from one source file. Corrupt
// frames are skipped and counted; corruption is local, streams are long.
type GrawFile struct {
	file      *os.File
	path      string
	sizeBytes int64
	offset    int64
	dropped   uint64
}

func OpenGrawFile(path string) (*GrawFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening graw file %q: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("error getting graw file info for %q: %w", path, err)
	}
	return &GrawFile{file: file, path: path, sizeBytes: info.Size()}, nil
}

// NextFrame returns the next valid frame. Frames with a bad header or CRC
// are skipped using the self-delimiting length field; when the length field
// itself is implausible the rest of the file cannot be trusted and reading
// stops. Returns io.EOF at end of file.
func (g *GrawFile) NextFrame() (*GrawFrame, error) {
	for {
		headerBinary := make([]byte, FrameHeaderSize)
		_, err := io.ReadFull(g.file, headerBinary)
		if err == io.EOF {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			g.dropped++
			logger.Error(fmt.Sprintf("truncated frame header at offset %d in %s", g.offset, g.path))
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("error reading frame header from %q: %w", g.path, err)
		}

		header, headerErr := decodeFrameHeader(headerBinary)
		if headerErr != nil {
			g.dropped++
			logger.Error(fmt.Sprintf("skipping frame at offset %d in %s: %v", g.offset, g.path, headerErr))
			if header.FrameSize < uint32(FrameHeaderSize) || header.FrameSize > MaxFrameSize {
				// The length field is garbage, nothing downstream can be trusted.
				logger.Error(fmt.Sprintf("unrecoverable framing in %s, abandoning file", g.path))
				return nil, io.EOF
			}
			skip := int64(header.FrameSize) - int64(FrameHeaderSize)
			if _, err := g.file.Seek(skip, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("error skipping corrupt frame in %q: %w", g.path, err)
			}
			g.offset += int64(header.FrameSize)
			continue
		}

		payload := make([]byte, header.FrameSize-uint32(FrameHeaderSize))
		if _, err := io.ReadFull(g.file, payload); err != nil {
			if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
				g.dropped++
				logger.Error(fmt.Sprintf("truncated final frame at offset %d in %s", g.offset, g.path))
				return nil, io.EOF
			}
			return nil, fmt.Errorf("error reading frame payload from %q: %w", g.path, err)
		}
		g.offset += int64(header.FrameSize)

		frame, err := decodeFramePayload(header, payload)
		if err != nil {
			g.dropped++
			logger.Error(fmt.Sprintf("skipping frame at offset %d in %s: %v",
				g.offset-int64(header.FrameSize), g.path, err))
			continue
		}
		return frame, nil
	}
}

// Dropped is the number of corrupt frames skipped so far.
func (g *GrawFile) Dropped() uint64 {
	return g.dropped
}

func (g *GrawFile) SizeBytes() int64 {
	return g.sizeBytes
}

func (g *GrawFile) Path() string {
	return g.path
}

func (g *GrawFile) Close() error {
	return g.file.Close()
}
