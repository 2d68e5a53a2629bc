package main

import (
	"fmt"

	merger "github.com/ATTPC/attpc-merger/pkg"
)

func printConfiguration(config merger.Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("Electronics path: %s", config.ElectronicsPath), "config")
	logger.Info(fmt.Sprintf("Trigger path: %s", config.TriggerPath), "config")
	logger.Info(fmt.Sprintf("Output path: %s", config.OutputPath), "config")
	if config.NeedCopyFiles() {
		logger.Info(fmt.Sprintf("Copy path: %s", config.CopyPath), "config")
	}
	logger.Info(fmt.Sprintf("Pad map: %s", config.PadMapPath), "config")
	logger.Info(fmt.Sprintf("Pad map from DB: %t", config.PadMapFromDB), "config")
	logger.Info(fmt.Sprintf("First run: %d", config.FirstRunNumber), "config")
	logger.Info(fmt.Sprintf("Last run: %d", config.LastRunNumber), "config")
	logger.Info(fmt.Sprintf("Online: %t", config.Online), "config")
	logger.Info(fmt.Sprintf("Experiment: %s", config.Experiment), "config")
	logger.Info(fmt.Sprintf("Merge AT-TPC pads: %t", config.MergeATTPC), "config")
	logger.Info(fmt.Sprintf("Merge silicon: %t", config.MergeSilicon), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
	logger.Info(fmt.Sprintf("Match window: %d ticks", config.MatchWindowTicks), "config")
	logger.Info(fmt.Sprintf("Orphan policy: %s", config.OrphanPolicy), "config")
	logger.Info(fmt.Sprintf("Frame buffer cap: %d", config.FrameBufferCap), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
}
