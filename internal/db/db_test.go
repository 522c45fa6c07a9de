package db

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/airway-data/breath.report/internal/breath"
)

// newTestDB opens a fresh sqlite database in a temp dir and applies all
// migrations. Tests run from the package directory so the migrations path
// is relative.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "breath_test.db")
	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.MigrateUp("migrations"); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	return db
}

func testMetrics() breath.Metrics {
	return breath.Metrics{
		Duration:      29.99,
		Breaths:       10,
		BreathRateBPM: 20.007,
		BreathTimes:   []float64{0.75, 3.75, 6.75},
		ApneaCount:    1,
		Leakage:       1.234,
	}
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := newTestDB(t)

	if err := db.MigrateUp("migrations"); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion("migrations")
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("migration state should not be dirty")
	}
	if version == 0 {
		t.Error("expected a nonzero migration version after MigrateUp")
	}
}

func TestMigrateDown(t *testing.T) {
	db := newTestDB(t)

	if err := db.MigrateDown("migrations"); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'analysis_runs'`).Scan(&count)
	if err != nil {
		t.Fatalf("querying sqlite_master failed: %v", err)
	}
	if count != 0 {
		t.Error("analysis_runs table should be dropped after MigrateDown")
	}
}

func TestRecordAndGetAnalysisRun(t *testing.T) {
	db := newTestDB(t)
	m := testMetrics()

	runID, err := db.RecordAnalysisRun("patient_01", "patient_01.txt", m, 3)
	if err != nil {
		t.Fatalf("RecordAnalysisRun failed: %v", err)
	}
	if runID == "" {
		t.Fatal("expected a nonempty run ID")
	}

	run, err := db.GetAnalysisRun(runID)
	if err != nil {
		t.Fatalf("GetAnalysisRun failed: %v", err)
	}

	if run.Patient != "patient_01" {
		t.Errorf("patient = %q, want patient_01", run.Patient)
	}
	if run.SourceFile != "patient_01.txt" {
		t.Errorf("source file = %q, want patient_01.txt", run.SourceFile)
	}
	if run.Duration != m.Duration {
		t.Errorf("duration = %f, want %f", run.Duration, m.Duration)
	}
	if run.Breaths != int64(m.Breaths) {
		t.Errorf("breaths = %d, want %d", run.Breaths, m.Breaths)
	}
	if run.BreathRateBPM != m.BreathRateBPM {
		t.Errorf("breath rate = %f, want %f", run.BreathRateBPM, m.BreathRateBPM)
	}
	if run.ApneaCount != int64(m.ApneaCount) {
		t.Errorf("apnea count = %d, want %d", run.ApneaCount, m.ApneaCount)
	}
	if run.Leakage != m.Leakage {
		t.Errorf("leakage = %f, want %f", run.Leakage, m.Leakage)
	}
	if run.ClampedSamples != 3 {
		t.Errorf("clamped samples = %d, want 3", run.ClampedSamples)
	}
	if diff := cmp.Diff(m.BreathTimes, run.BreathTimes); diff != "" {
		t.Errorf("breath times mismatch (-want +got):\n%s", diff)
	}
	if run.CreatedAt.IsZero() {
		t.Error("expected created_at to be populated")
	}
}

func TestGetAnalysisRunNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetAnalysisRun("no-such-run")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestAnalysisRunsOrderingAndLimit(t *testing.T) {
	db := newTestDB(t)

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := db.RecordAnalysisRun("patient_02", "patient_02.txt", testMetrics(), 0)
		if err != nil {
			t.Fatalf("RecordAnalysisRun failed: %v", err)
		}
		ids = append(ids, id)
	}

	runs, err := db.AnalysisRuns(0)
	if err != nil {
		t.Fatalf("AnalysisRuns failed: %v", err)
	}
	if len(runs) != 5 {
		t.Fatalf("got %d runs, want 5", len(runs))
	}

	limited, err := db.AnalysisRuns(2)
	if err != nil {
		t.Fatalf("AnalysisRuns with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d runs with limit 2, want 2", len(limited))
	}

	seen := make(map[string]bool)
	for _, run := range runs {
		seen[run.RunID] = true
	}
	for _, id := range ids {
		if !seen[id] {
			t.Errorf("run %s missing from AnalysisRuns result", id)
		}
	}
}

func TestRunsForPatient(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.RecordAnalysisRun("alice", "alice.txt", testMetrics(), 0); err != nil {
		t.Fatalf("RecordAnalysisRun failed: %v", err)
	}
	if _, err := db.RecordAnalysisRun("bob", "bob.txt", testMetrics(), 0); err != nil {
		t.Fatalf("RecordAnalysisRun failed: %v", err)
	}

	runs, err := db.RunsForPatient("alice", 10)
	if err != nil {
		t.Fatalf("RunsForPatient failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs for alice, want 1", len(runs))
	}
	if runs[0].Patient != "alice" {
		t.Errorf("patient = %q, want alice", runs[0].Patient)
	}
}

func TestDeleteAnalysisRun(t *testing.T) {
	db := newTestDB(t)

	id, err := db.RecordAnalysisRun("patient_03", "patient_03.txt", testMetrics(), 0)
	if err != nil {
		t.Fatalf("RecordAnalysisRun failed: %v", err)
	}

	if err := db.DeleteAnalysisRun(id); err != nil {
		t.Fatalf("DeleteAnalysisRun failed: %v", err)
	}
	if _, err := db.GetAnalysisRun(id); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound after delete, got %v", err)
	}
	if err := db.DeleteAnalysisRun(id); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound deleting twice, got %v", err)
	}
}

func TestCreatedAtFormats(t *testing.T) {
	db := newTestDB(t)

	insert := func(id, createdAt string) {
		t.Helper()
		_, err := db.Exec(
			`INSERT INTO analysis_runs (
				run_id, patient, source_file, duration, breaths, breath_rate_bpm,
				apnea_count, leakage, breath_times, clamped_samples, created_at
			) VALUES (?, 'p', 'p.txt', 1, 1, 1, 0, 0, '[]', 0, ?)`,
			id, createdAt,
		)
		if err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	// RFC3339 timestamps, such as from an imported dump, parse too.
	insert("rfc3339", "2026-08-23T10:00:00Z")
	run, err := db.GetAnalysisRun("rfc3339")
	if err != nil {
		t.Fatalf("GetAnalysisRun failed: %v", err)
	}
	if run.CreatedAt.IsZero() {
		t.Error("expected RFC3339 created_at to be populated")
	}

	// An unparseable timestamp must fail loudly, not scan as the zero time.
	insert("garbage", "not-a-time")
	if _, err := db.GetAnalysisRun("garbage"); err == nil {
		t.Error("expected error for unparseable created_at")
	} else if !strings.Contains(err.Error(), "created_at") {
		t.Errorf("error should name created_at, got: %v", err)
	}
}

func TestEmptyBreathTimesRoundTrip(t *testing.T) {
	db := newTestDB(t)

	m := testMetrics()
	m.BreathTimes = []float64{}
	m.Breaths = 0

	id, err := db.RecordAnalysisRun("patient_04", "patient_04.txt", m, 0)
	if err != nil {
		t.Fatalf("RecordAnalysisRun failed: %v", err)
	}

	run, err := db.GetAnalysisRun(id)
	if err != nil {
		t.Fatalf("GetAnalysisRun failed: %v", err)
	}
	if run.BreathTimes == nil || len(run.BreathTimes) != 0 {
		t.Errorf("breath times = %v, want empty non-nil slice", run.BreathTimes)
	}
}
