package merger

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type copyEntry struct {
	src  string
	dst  string
	size int64
}

// FileCopier stages a run's graw and evt files from their source mounts onto
// local storage before merging. Network mounts are slow and flaky; copying
// once and merging locally beats seeking over NFS.
type FileCopier struct {
	runNumber  int
	grawDirs   []string
	evtDir     string
	entries    []copyEntry
	totalBytes int64
}

// NewFileCopier collects the copy work for one run. With no copy path
// configured the copier is empty and Copy is a no-op.
func NewFileCopier(config Configuration, runNumber int) (*FileCopier, error) {
	base := filepath.Join(config.CopyPath, config.RunString(runNumber))
	copier := &FileCopier{
		runNumber: runNumber,
		evtDir:    filepath.Join(base, "frib"),
	}
	if !config.NeedCopyFiles() {
		return copier, nil
	}

	triggerDir := config.TriggerRunDir(runNumber)
	evtEntries, err := os.ReadDir(triggerDir)
	if err != nil {
		return nil, &SourceNotFoundError{RunNumber: runNumber, Path: triggerDir}
	}
	for _, entry := range evtEntries {
		name := entry.Name()
		if entry.IsDir() || !strings.Contains(name, "run-") || !strings.HasSuffix(name, ".evt") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		copier.add(filepath.Join(triggerDir, name), filepath.Join(copier.evtDir, name), info.Size())
	}

	for i, dir := range config.ElectronicsRunDirs(runNumber) {
		sub := "get"
		if config.Online {
			sub = fmt.Sprintf("mm%d", i)
		}
		localDir := filepath.Join(base, sub)
		found := false
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".graw") {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			copier.add(path, filepath.Join(localDir, rel), info.Size())
			found = true
			return nil
		})
		if err != nil {
			// Missing per-CoBo mounts are normal, the merge stage
			// checks that at least one directory exists.
			continue
		}
		if found {
			copier.grawDirs = append(copier.grawDirs, localDir)
		}
	}
	sort.Slice(copier.entries, func(i, j int) bool {
		return copier.entries[i].src < copier.entries[j].src
	})
	return copier, nil
}

func (c *FileCopier) add(src string, dst string, size int64) {
	c.entries = append(c.entries, copyEntry{src: src, dst: dst, size: size})
	c.totalBytes += size
}

// TotalBytes is the combined size of the files to stage.
func (c *FileCopier) TotalBytes() int64 {
	return c.totalBytes
}

// GrawDirs are the local graw directories after Copy.
func (c *FileCopier) GrawDirs() []string {
	return c.grawDirs
}

// EvtDir is the local evt directory after Copy.
func (c *FileCopier) EvtDir() string {
	return c.evtDir
}

// Copy stages every collected file, reporting cumulative bytes after each
// one. Cancellation is honored between files.
func (c *FileCopier) Copy(ctx context.Context, copied func(int64)) error {
	var done int64
	for _, entry := range c.entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyFile(entry.src, entry.dst); err != nil {
			return &CopyError{Src: entry.src, Dst: entry.dst, Err: err}
		}
		done += entry.size
		if copied != nil {
			copied(done)
		}
	}
	return nil
}

func copyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
