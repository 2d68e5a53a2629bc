package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"

	merger "github.com/ATTPC/attpc-merger/pkg"
)

var configuration merger.Configuration

var (
	logger         Logger
	VerbosityLevel int
)

func init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	handlerStdOut := NewHandler(os.Stdout, opts)
	handlerStdErr := slog.NewJSONHandler(os.Stderr, opts)
	logger = Logger{
		InfoLog:  slog.New(handlerStdOut),
		ErrorLog: slog.New(handlerStdErr),
	}
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path")
	flag.Parse()

	var err error
	configuration, err = merger.LoadConfiguration(*configFilename)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		os.Exit(1)
	}
	merger.SetLogger(logger)

	VerbosityLevel = configuration.Verbosity
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", *configFilename)
		logger.Info(message, "main")
		printConfiguration(configuration, logger)
	}

	padMap, err := merger.OpenPadMap(configuration)
	if err != nil {
		message := fmt.Errorf("Error loading pad map: %w", err)
		logger.Error(message.Error())
		os.Exit(1)
	}
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Pad map loaded: %d channels (%s)", padMap.Len(), padMap.Version())
		logger.Info(message, "main")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := make(chan merger.Progress, 64)
	go printProgress(progress)

	start := time.Now()
	report, err := merger.RunSession(ctx, merger.RunContext{
		Config:   configuration,
		PadMap:   padMap,
		Progress: progress,
	})
	if err != nil {
		message := fmt.Errorf("Error running session: %w", err)
		logger.Error(message.Error())
		os.Exit(1)
	}
	duration := time.Since(start)
	fmt.Printf("Total time: %d ms\n", duration.Milliseconds())

	printReport(report)
	if !report.AllDone() {
		os.Exit(1)
	}
}

func printProgress(progress <-chan merger.Progress) {
	for p := range progress {
		if VerbosityLevel > 1 && p.Stage == merger.RunMerging {
			fmt.Printf("run %d: %.0f%%\n", p.RunNumber, p.Percent)
		}
	}
}

func printReport(report merger.SessionReport) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Printf("Session %s\n", report.SessionID)
	runs := make([]int, 0, len(report.Results))
	for run := range report.Results {
		runs = append(runs, run)
	}
	sort.Ints(runs)
	for _, run := range runs {
		result := report.Results[run]
		switch result.State {
		case merger.RunDone:
			fmt.Printf("  run %d: %s (%d events, %d orphans)\n", run, green("done"),
				result.Counters.TriggerEvents, result.Counters.OrphanEvents)
		case merger.RunFailed:
			fmt.Printf("  run %d: %s (%v)\n", run, red("failed"), result.Err)
		default:
			fmt.Printf("  run %d: %s\n", run, result.State)
		}
	}

	total := report.Aggregate()
	fmt.Printf("Merged %d trigger events, %d frames matched, %d orphaned\n",
		total.TriggerEvents, total.FramesMatched, total.FramesOrphaned)
	if failed := report.FailedRuns(); len(failed) > 0 {
		fmt.Printf("Failed runs: %v\n", failed)
	}
}
