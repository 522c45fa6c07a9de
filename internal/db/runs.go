package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/airway-data/breath.report/internal/breath"
)

// ErrRunNotFound is returned when no analysis run exists for a given ID.
var ErrRunNotFound = errors.New("analysis run not found")

// AnalysisRun is a persisted record of one full pipeline run over a
// recording. Breath times are stored as a JSON array in a TEXT column so
// the row stays flat and queryable.
type AnalysisRun struct {
	RunID          string    `json:"run_id"`
	Patient        string    `json:"patient"`
	SourceFile     string    `json:"source_file"`
	Duration       float64   `json:"duration"`
	Breaths        int64     `json:"breaths"`
	BreathRateBPM  float64   `json:"breath_rate_bpm"`
	ApneaCount     int64     `json:"apnea_count"`
	Leakage        float64   `json:"leakage"`
	BreathTimes    []float64 `json:"breath_times"`
	ClampedSamples int64     `json:"clamped_samples"`
	CreatedAt      time.Time `json:"created_at"`
}

func (r *AnalysisRun) String() string {
	return fmt.Sprintf(
		"RunID: %s, Patient: %s, SourceFile: %s, Duration: %f, Breaths: %d, BreathRateBPM: %f, ApneaCount: %d, Leakage: %f",
		r.RunID,
		r.Patient,
		r.SourceFile,
		r.Duration,
		r.Breaths,
		r.BreathRateBPM,
		r.ApneaCount,
		r.Leakage,
	)
}

// RecordAnalysisRun stores the metrics of a completed analysis and returns
// the generated run ID.
func (db *DB) RecordAnalysisRun(patient, sourceFile string, m breath.Metrics, clampedSamples int) (string, error) {
	runID := uuid.NewString()

	breathTimes, err := json.Marshal(m.BreathTimes)
	if err != nil {
		return "", fmt.Errorf("failed to encode breath times: %w", err)
	}

	_, err = db.Exec(
		`INSERT INTO analysis_runs (
			run_id, patient, source_file, duration, breaths, breath_rate_bpm,
			apnea_count, leakage, breath_times, clamped_samples
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, patient, sourceFile, m.Duration, m.Breaths, m.BreathRateBPM,
		m.ApneaCount, m.Leakage, string(breathTimes), clampedSamples,
	)
	if err != nil {
		return "", err
	}
	return runID, nil
}

// AnalysisRuns returns the most recent runs, newest first. A limit of 0 or
// less falls back to 100.
func (db *DB) AnalysisRuns(limit int) ([]AnalysisRun, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(
		`SELECT run_id, patient, source_file, duration, breaths, breath_rate_bpm,
			apnea_count, leakage, breath_times, clamped_samples, created_at
		FROM analysis_runs ORDER BY created_at DESC, run_id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []AnalysisRun
	for rows.Next() {
		run, err := scanAnalysisRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// GetAnalysisRun returns a single run by its ID, or ErrRunNotFound.
func (db *DB) GetAnalysisRun(runID string) (*AnalysisRun, error) {
	row := db.QueryRow(
		`SELECT run_id, patient, source_file, duration, breaths, breath_rate_bpm,
			apnea_count, leakage, breath_times, clamped_samples, created_at
		FROM analysis_runs WHERE run_id = ?`,
		runID,
	)

	run, err := scanAnalysisRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RunsForPatient returns the most recent runs for one patient, newest first.
func (db *DB) RunsForPatient(patient string, limit int) ([]AnalysisRun, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(
		`SELECT run_id, patient, source_file, duration, breaths, breath_rate_bpm,
			apnea_count, leakage, breath_times, clamped_samples, created_at
		FROM analysis_runs WHERE patient = ? ORDER BY created_at DESC, run_id DESC LIMIT ?`,
		patient, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []AnalysisRun
	for rows.Next() {
		run, err := scanAnalysisRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// DeleteAnalysisRun removes a run by ID. Deleting a missing run returns
// ErrRunNotFound.
func (db *DB) DeleteAnalysisRun(runID string) error {
	result, err := db.Exec(`DELETE FROM analysis_runs WHERE run_id = ?`, runID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysisRun(row rowScanner) (*AnalysisRun, error) {
	var (
		run         AnalysisRun
		breathTimes string
		createdAt   string
	)

	if err := row.Scan(
		&run.RunID,
		&run.Patient,
		&run.SourceFile,
		&run.Duration,
		&run.Breaths,
		&run.BreathRateBPM,
		&run.ApneaCount,
		&run.Leakage,
		&breathTimes,
		&run.ClampedSamples,
		&createdAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(breathTimes), &run.BreathTimes); err != nil {
		return nil, fmt.Errorf("failed to decode breath times for run %s: %w", run.RunID, err)
	}
	if run.BreathTimes == nil {
		run.BreathTimes = []float64{}
	}

	// modernc sqlite returns CURRENT_TIMESTAMP columns as text.
	if t, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
		run.CreatedAt = t
	} else if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		run.CreatedAt = t
	} else {
		return nil, fmt.Errorf("failed to parse created_at %q for run %s: %w", createdAt, run.RunID, err)
	}

	return &run, nil
}
