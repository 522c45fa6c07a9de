// Package plot renders diagnostic PNGs for an analysis run: the raw and
// filtered flow signals, each with the detected breath peaks overlaid.
// These match the figures the bench tuning process was done against, so a
// regression in the filter or detector is visible at a glance.
package plot

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/airway-data/breath.report/internal/breath"
)

var (
	rawColor      = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	filteredColor = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	peakColor     = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakeOutputDir builds a timestamped plot directory for one analysis:
// <baseDir>/<recording_basename>/<timestamp>.
func MakeOutputDir(baseDir, recordingFile string) string {
	ts := FormatTimestamp(time.Now())
	if recordingFile != "" {
		base := filepath.Base(recordingFile)
		ext := filepath.Ext(base)
		name := base[:len(base)-len(ext)]
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "live_"+ts)
}

// GenerateAnalysisPlots writes the diagnostic PNGs for one analysis result
// into outputDir, creating it if needed. Returns the number of files
// written.
func GenerateAnalysisPlots(result *breath.Result, outputDir string) (int, error) {
	if result == nil || len(result.Series) == 0 {
		return 0, fmt.Errorf("no analysis data to plot")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	rawPts := make(plotter.XYs, len(result.Series))
	filteredPts := make(plotter.XYs, len(result.Series))
	for i, s := range result.Series {
		rawPts[i] = plotter.XY{X: s.Time, Y: s.Rate}
		filteredPts[i] = plotter.XY{X: s.Time, Y: result.Detection.Filtered[i]}
	}
	peakPts := peakPoints(result)

	written := 0

	overlay, err := flowPlot("Flow Rate: Raw vs Filtered", []series{
		{"raw", rawPts, rawColor, false},
		{"filtered", filteredPts, filteredColor, false},
	})
	if err != nil {
		return written, err
	}
	if err := savePlot(overlay, filepath.Join(outputDir, "flow_overlay.png")); err != nil {
		return written, err
	}
	written++

	rawPeaks, err := flowPlot("Raw Flow with Breath Peaks", []series{
		{"raw", rawPts, rawColor, false},
		{"peaks", peakPts, peakColor, true},
	})
	if err != nil {
		return written, err
	}
	if err := savePlot(rawPeaks, filepath.Join(outputDir, "flow_raw_peaks.png")); err != nil {
		return written, err
	}
	written++

	filteredPeaks, err := flowPlot("Filtered Flow with Breath Peaks", []series{
		{"filtered", filteredPts, filteredColor, false},
		{"peaks", peakPts, peakColor, true},
	})
	if err != nil {
		return written, err
	}
	if err := savePlot(filteredPeaks, filepath.Join(outputDir, "flow_filtered_peaks.png")); err != nil {
		return written, err
	}
	written++

	return written, nil
}

type series struct {
	label   string
	pts     plotter.XYs
	color   color.Color
	scatter bool
}

func flowPlot(title string, lines []series) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Flow (m³/s)"

	for _, s := range lines {
		if len(s.pts) == 0 {
			continue
		}
		if s.scatter {
			sc, err := plotter.NewScatter(s.pts)
			if err != nil {
				return nil, err
			}
			sc.GlyphStyle.Color = s.color
			sc.GlyphStyle.Radius = vg.Points(3)
			p.Add(sc)
			p.Legend.Add(s.label, sc)
			continue
		}
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return nil, err
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.label, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func savePlot(p *plot.Plot, file string) error {
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save %s: %w", filepath.Base(file), err)
	}
	return nil
}

// peakPoints places each detected breath at its filtered-signal amplitude
// so the markers sit on the curve the detector actually ran over.
func peakPoints(result *breath.Result) plotter.XYs {
	pts := make(plotter.XYs, 0, len(result.Metrics.BreathTimes))
	j := 0
	for _, t := range result.Metrics.BreathTimes {
		for j < len(result.Series)-1 && result.Series[j].Time < t {
			j++
		}
		pts = append(pts, plotter.XY{X: result.Series[j].Time, Y: result.Detection.Filtered[j]})
	}
	return pts
}
