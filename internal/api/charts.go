package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/airway-data/breath.report/internal/breath"
)

// flowChart renders a quick HTML chart of the most recent analysis using
// go-echarts. This is a debugging-only endpoint (no auth) to visually check
// filter behaviour and peak placement without a frontend.
// Query params:
//   - max_points (optional; default 6000) to reduce payload size
func (s *Server) flowChart(w http.ResponseWriter, r *http.Request) {
	// Errors come back as JSON like every other handler; the header is
	// replaced with text/html only once the chart renders.
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	result, name := s.lastResult()
	if result == nil {
		s.writeJSONError(w, http.StatusNotFound, "no analysis available yet")
		return
	}

	maxPoints := 6000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	// Downsample by stride to stay within maxPoints
	stride := 1
	if len(result.Series) > maxPoints {
		stride = int(math.Ceil(float64(len(result.Series)) / float64(maxPoints)))
	}

	axis := make([]string, 0, len(result.Series)/stride+1)
	raw := make([]opts.LineData, 0, len(result.Series)/stride+1)
	filtered := make([]opts.LineData, 0, len(result.Series)/stride+1)
	for i := 0; i < len(result.Series); i += stride {
		axis = append(axis, fmt.Sprintf("%.2f", result.Series[i].Time))
		raw = append(raw, opts.LineData{Value: result.Series[i].Rate})
		filtered = append(filtered, opts.LineData{Value: result.Detection.Filtered[i]})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Breath Flow",
			Theme:     "dark",
			Width:     "1400px",
			Height:    "700px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Breath Flow",
			Subtitle: fmt.Sprintf("patient=%s samples=%d stride=%d breaths=%d apneas=%d",
				name, len(result.Series), stride, result.Metrics.Breaths, result.Metrics.ApneaCount),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Flow (m³/s)", NameLocation: "middle", NameGap: 40}),
	)

	line.SetXAxis(axis).
		AddSeries("raw", raw, charts.WithLineChartOpts(opts.LineChart{Symbol: "none"})).
		AddSeries("filtered", filtered, charts.WithLineChartOpts(opts.LineChart{Symbol: "none"}))

	// Overlay detected breath peaks as a scatter on the same axis. Peak
	// times are snapped to the nearest downsampled axis index.
	peaks := make([]opts.ScatterData, 0, len(result.Metrics.BreathTimes))
	for _, t := range result.Metrics.BreathTimes {
		idx := nearestIndex(result.Series, t)
		snapped := idx / stride * stride
		if snapped >= len(result.Series) {
			continue
		}
		peaks = append(peaks, opts.ScatterData{
			Value: []interface{}{fmt.Sprintf("%.2f", result.Series[snapped].Time), result.Detection.Filtered[snapped]},
		})
	}
	scatter := charts.NewScatter()
	scatter.AddSeries("peaks", peaks, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	line.Overlap(scatter)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// nearestIndex finds the sample index closest in time to t.
func nearestIndex(series []breath.Sample, t float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i := range series {
		d := math.Abs(series[i].Time - t)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}
