// Package api serves the breath analysis HTTP surface: uploading recordings
// for analysis, browsing persisted runs, capture control, and debug charts.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/airway-data/breath.report/internal/breath"
	"github.com/airway-data/breath.report/internal/config"
	"github.com/airway-data/breath.report/internal/db"
	"github.com/airway-data/breath.report/internal/ingest"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxUploadBytes bounds recording uploads. A night of 100Hz four-channel
// samples is around 30MB of CSV, so 128MB leaves ample headroom.
const maxUploadBytes = 128 << 20

// CaptureController is the slice of the live capture recorder the API
// needs. The real implementation lives in internal/capture.
type CaptureController interface {
	Start(name string) (string, error)
	Stop() (string, int, error)
	Active() bool
}

type Server struct {
	db      *db.DB
	capture CaptureController
	tuning  *config.TuningConfig
	logger  *log.Logger

	// last completed analysis, kept in memory for the debug charts
	lastMu   sync.RWMutex
	last     *breath.Result
	lastName string
}

func NewServer(database *db.DB, capture CaptureController, tuning *config.TuningConfig, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		db:      database,
		capture: capture,
		tuning:  tuning,
		logger:  logger,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/analyze", s.analyzeRecording)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/", s.showRun)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/capture/start", s.startCapture)
	mux.HandleFunc("/api/capture/stop", s.stopCapture)
	mux.HandleFunc("/charts/flow", s.flowChart)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// analyzeRecording accepts a multipart upload of a raw ADC recording, runs
// the full pipeline on it, and persists the resulting metrics.
func (s *Server) analyzeRecording(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("recording")
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'recording' file upload")
		return
	}
	defer file.Close()

	patient := r.FormValue("patient")
	if patient == "" {
		// fall back to the upload filename minus extension
		base := filepath.Base(header.Filename)
		patient = strings.TrimSuffix(base, filepath.Ext(base))
	}

	matrix, err := ingest.ReadRecordingFrom(file, s.logger)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("Failed to parse recording: %v", err))
		return
	}

	params := breath.ParamsFromTuning(s.tuning)
	result, err := breath.Analyze(matrix, params, s.logger)
	if err != nil {
		if errors.Is(err, breath.ErrDegenerateSeries) || errors.Is(err, breath.ErrNonMonotonicTime) {
			s.writeJSONError(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("Recording not analyzable: %v", err))
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Analysis failed: %v", err))
		return
	}

	runID, err := s.db.RecordAnalysisRun(patient, header.Filename, result.Metrics, result.ClampedSamples)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to persist analysis run: %v", err))
		return
	}

	s.lastMu.Lock()
	s.last = result
	s.lastName = patient
	s.lastMu.Unlock()

	response := struct {
		RunID string `json:"run_id"`
		breath.Metrics
		ClampedSamples int `json:"clamped_samples"`
	}{runID, result.Metrics, result.ClampedSamples}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write analysis result")
		return
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 100 // default value
	if l := r.URL.Query().Get("limit"); l != "" {
		parsedLimit, err := strconv.Atoi(l)
		if err != nil || parsedLimit < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsedLimit
	}

	var runs []db.AnalysisRun
	var err error
	if patient := r.URL.Query().Get("patient"); patient != "" {
		runs, err = s.db.RunsForPatient(patient, limit)
	} else {
		runs, err = s.db.AnalysisRuns(limit)
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}
	if runs == nil {
		runs = []db.AnalysisRun{}
	}

	if err := json.NewEncoder(w).Encode(runs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write runs")
		return
	}
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if runID == "" || strings.Contains(runID, "/") {
		s.writeJSONError(w, http.StatusNotFound, "Run not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		run, err := s.db.GetAnalysisRun(runID)
		if errors.Is(err, db.ErrRunNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "Run not found")
			return
		}
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to retrieve run: %v", err))
			return
		}
		if err := json.NewEncoder(w).Encode(run); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write run")
		}
	case http.MethodDelete:
		err := s.db.DeleteAnalysisRun(runID)
		if errors.Is(err, db.ErrRunNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "Run not found")
			return
		}
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to delete run: %v", err))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"deleted": runID})
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := map[string]interface{}{
		"cutoff_hz":            s.tuning.GetCutoffHz(),
		"min_peak_height":      s.tuning.GetMinPeakHeight(),
		"min_peak_distance":    s.tuning.GetMinPeakDistance(),
		"prominence_std_ratio": s.tuning.GetProminenceStdRatio(),
		"apnea_gap_seconds":    s.tuning.GetApneaGapSeconds(),
		"serial_port":          s.tuning.GetSerialPort(),
		"baud_rate":            s.tuning.GetBaudRate(),
	}

	if err := json.NewEncoder(w).Encode(cfg); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}

func (s *Server) startCapture(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.capture == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Capture not configured")
		return
	}

	name := r.FormValue("name")
	path, err := s.capture.Start(name)
	if err != nil {
		s.writeJSONError(w, http.StatusConflict,
			fmt.Sprintf("Failed to start capture: %v", err))
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "recording", "path": path})
}

func (s *Server) stopCapture(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.capture == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Capture not configured")
		return
	}

	path, rows, err := s.capture.Stop()
	if err != nil {
		s.writeJSONError(w, http.StatusConflict,
			fmt.Sprintf("Failed to stop capture: %v", err))
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "stopped",
		"path":   path,
		"rows":   rows,
	})
}

// lastResult returns the most recent in-memory analysis, if any.
func (s *Server) lastResult() (*breath.Result, string) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last, s.lastName
}
