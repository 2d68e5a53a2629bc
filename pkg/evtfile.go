package merger

import (
	"encoding/binary"
	"io"
	"os"
)

// EvtFile reads size-prefixed ring records from one trigger file. The size
// field counts itself, so a record is never shorter than the prefix.
type EvtFile struct {
	file      *os.File
	path      string
	sizeBytes int64
	dropped   uint64
}

func OpenEvtFile(path string) (*EvtFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	return &EvtFile{file: file, path: path, sizeBytes: stat.Size()}, nil
}

// NextItem returns the next ring record, or io.EOF when the file is
// exhausted. A record with an implausible size prefix ends the file, since
// there is no way to find the next record boundary.
func (f *EvtFile) NextItem() (RingItem, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(f.file, prefix[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			f.dropped++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return RingItem{}, io.EOF
		}
		return RingItem{}, err
	}
	size := binary.LittleEndian.Uint32(prefix[:])
	if size < ringHeaderSize || size > maxRingSize {
		f.dropped++
		return RingItem{}, io.EOF
	}
	rest := make([]byte, size-4)
	if _, err := io.ReadFull(f.file, rest); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			f.dropped++
			return RingItem{}, io.EOF
		}
		return RingItem{}, err
	}
	item := RingItem{
		Size:  size,
		Type:  binary.LittleEndian.Uint32(rest[:4]),
		Bytes: rest[4:],
	}
	return item, nil
}

func (f *EvtFile) Dropped() uint64 {
	return f.dropped
}

func (f *EvtFile) SizeBytes() int64 {
	return f.sizeBytes
}

func (f *EvtFile) Path() string {
	return f.path
}

func (f *EvtFile) Close() error {
	return f.file.Close()
}
