package merger

import (
	"fmt"
	"os"
	"path/filepath"

	yaml "gopkg.in/yaml.v3"
)

// OrphanPolicy decides what happens to electronics frames that no trigger
// claimed within the match window.
type OrphanPolicy string

const (
	// OrphanDrop discards unmatched frames, counting them.
	OrphanDrop OrphanPolicy = "drop"
	// OrphanEmit writes unmatched frames as degraded events with no trigger payload.
	OrphanEmit OrphanPolicy = "emit"
)

// NumberOfCobos is the number of CoBo modules in the AT-TPC readout.
const NumberOfCobos = 11

// CoboOfSilicon is the first CoBo carrying the silicon detectors instead of
// pad-plane channels.
const CoboOfSilicon = 10

type Configuration struct {
	ElectronicsPath  string       `yaml:"electronics_path"`
	TriggerPath      string       `yaml:"trigger_path"`
	OutputPath       string       `yaml:"output_path"`
	PadMapPath       string       `yaml:"pad_map_path"`
	FirstRunNumber   int          `yaml:"first_run_number"`
	LastRunNumber    int          `yaml:"last_run_number"`
	Online           bool         `yaml:"online"`
	Experiment       string       `yaml:"experiment"`
	CopyPath         string       `yaml:"copy_path"`
	MergeATTPC       bool         `yaml:"merge_attpc"`
	MergeSilicon     bool         `yaml:"merge_silicon"`
	NumWorkers       int          `yaml:"num_workers"`
	MatchWindowTicks uint64       `yaml:"match_window_ticks"`
	OrphanPolicy     OrphanPolicy `yaml:"orphan_policy"`
	FrameBufferCap   int          `yaml:"frame_buffer_cap"`
	Verbosity        int          `yaml:"verbosity"`
	PadMapFromDB     bool         `yaml:"pad_map_from_db"`
	Host             string       `yaml:"host"`
	User             string       `yaml:"user"`
	Passwd           string       `yaml:"pass"`
	DBName           string       `yaml:"dbname"`
}

func LoadConfiguration(filename string) (Configuration, error) {
	var config Configuration

	// Set default values
	config.NumWorkers = 1
	config.MergeATTPC = true
	config.MergeSilicon = true
	config.MatchWindowTicks = 8
	config.OrphanPolicy = OrphanDrop
	config.FrameBufferCap = 200000
	config.Verbosity = 0
	config.Host = "attpcdb.nscl.msu.edu"
	config.User = "attpcreader"
	config.Passwd = "readonly"
	config.DBName = "ATTPC"

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return config, err
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Validate checks the fields that make a whole session impossible.
func (c Configuration) Validate() error {
	if c.FirstRunNumber > c.LastRunNumber {
		return fmt.Errorf("invalid run range: first %d > last %d", c.FirstRunNumber, c.LastRunNumber)
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("number of workers must be at least 1, got %d", c.NumWorkers)
	}
	if c.OrphanPolicy != OrphanDrop && c.OrphanPolicy != OrphanEmit {
		return fmt.Errorf("unknown orphan policy %q", c.OrphanPolicy)
	}
	if c.FrameBufferCap < 1 {
		return fmt.Errorf("frame buffer cap must be positive, got %d", c.FrameBufferCap)
	}
	if !c.MergeATTPC && !c.MergeSilicon {
		return fmt.Errorf("at least one of merge_attpc and merge_silicon must be enabled")
	}
	return nil
}

// NeedCopyFiles reports whether sources are staged on local storage before
// merging.
func (c Configuration) NeedCopyFiles() bool {
	return c.CopyPath != ""
}

// RunString formats a run number with the AT-TPC DAQ convention.
func (c Configuration) RunString(runNumber int) string {
	return fmt.Sprintf("run_%04d", runNumber)
}

// ElectronicsRunDirs lists the candidate directories holding the graw files
// for a run. Offline it is a single run directory; online each CoBo exposes
// its own network mount under the experiment name.
func (c Configuration) ElectronicsRunDirs(runNumber int) []string {
	if !c.Online {
		return []string{filepath.Join(c.ElectronicsPath, c.RunString(runNumber))}
	}
	dirs := make([]string, 0, NumberOfCobos)
	for cobo := 0; cobo < NumberOfCobos; cobo++ {
		dirs = append(dirs, filepath.Join(
			fmt.Sprintf("/Volumes/mm%d", cobo), c.Experiment, c.RunString(runNumber)))
	}
	return dirs
}

// TriggerRunDir is the directory holding the evt files for a run, following
// the FRIBDAQ naming convention.
func (c Configuration) TriggerRunDir(runNumber int) string {
	return filepath.Join(c.TriggerPath, fmt.Sprintf("run%d", runNumber))
}

// OutputFilePath is the final, committed path of a run's merged container.
func (c Configuration) OutputFilePath(runNumber int) string {
	return filepath.Join(c.OutputPath, c.RunString(runNumber)+".h5")
}
