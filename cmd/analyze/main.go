// Command analyze runs the breathing analysis pipeline over recorded
// sessions in batch. Each input file produces a <patient>.json metrics
// report and a <patient>.log processing log next to it; a failure in one
// recording never stops the batch.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/airway-data/breath.report/internal/breath"
	"github.com/airway-data/breath.report/internal/config"
	"github.com/airway-data/breath.report/internal/ingest"
	"github.com/airway-data/breath.report/internal/plot"
)

var (
	configFile = flag.String("config", "", "Path to a tuning config JSON file (optional)")
	outDir     = flag.String("out", "", "Directory for reports and logs (default: next to each recording)")
	makePlots  = flag.Bool("plots", false, "Write diagnostic PNG plots per recording")
	plotDir    = flag.String("plot-dir", "", "Base directory for plots (default: from config)")
)

func main() {
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] recording.txt [recording.txt ...]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	tuning := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	params := breath.ParamsFromTuning(tuning)

	failures := 0
	for _, path := range flag.Args() {
		if err := analyzeRecording(path, params, tuning); err != nil {
			log.Printf("ERROR: %s: %v", path, err)
			failures++
		}
	}

	if failures > 0 {
		log.Printf("%d of %d recordings failed", failures, flag.NArg())
		os.Exit(1)
	}
}

// analyzeRecording processes one recording end to end: parse, analyze,
// report, and optionally plot.
func analyzeRecording(path string, params breath.AnalysisParams, tuning *config.TuningConfig) error {
	patient := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	dir := *outDir
	if dir == "" {
		dir = filepath.Dir(path)
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	// Per-patient processing log, mirrored to stderr
	logFile, err := os.Create(filepath.Join(dir, patient+".log"))
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer logFile.Close()
	logger := log.New(io.MultiWriter(os.Stderr, logFile), patient+": ", log.LstdFlags)

	logger.Printf("reading %s", path)
	matrix, err := ingest.ReadRecording(path, logger)
	if err != nil {
		return err
	}
	logger.Printf("parsed %d sample rows", len(matrix))

	result, err := breath.Analyze(matrix, params, logger)
	if err != nil {
		return err
	}
	logger.Printf("breaths=%d rate=%.3f bpm apneas=%d leakage=%.3f L",
		result.Metrics.Breaths, result.Metrics.BreathRateBPM,
		result.Metrics.ApneaCount, result.Metrics.Leakage)

	reportPath := filepath.Join(dir, patient+".json")
	report, err := json.MarshalIndent(result.Metrics, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(reportPath, append(report, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.Printf("wrote %s", reportPath)

	if *makePlots {
		base := *plotDir
		if base == "" {
			base = tuning.GetPlotDir()
		}
		outputDir := plot.MakeOutputDir(base, path)
		n, err := plot.GenerateAnalysisPlots(result, outputDir)
		if err != nil {
			return fmt.Errorf("failed to generate plots: %w", err)
		}
		logger.Printf("wrote %d plots to %s", n, outputDir)
	}

	return nil
}
