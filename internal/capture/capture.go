// Package capture records live sample streams from the pressure board into
// recording files that the ingest layer can read back. One recording is
// active at a time; lines that fail row validation are logged and dropped so
// a glitchy board never corrupts a night's capture.
package capture

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/airway-data/breath.report/internal/ingest"
	"github.com/airway-data/breath.report/internal/serialmux"
)

// header written at the top of every recording file, matching the board's
// own stream header so captured and offline recordings parse identically.
const recordingHeader = "time,p2,p1_ins,p1_exp\n"

// Recorder subscribes to the serial mux and appends validated sample rows
// to the active recording file.
type Recorder struct {
	mux    serialmux.SerialMuxInterface
	dir    string
	logger *log.Logger

	mu     sync.Mutex
	active bool
	file   *os.File
	path   string
	rows   int
	subID  string
	wg     sync.WaitGroup
}

// NewRecorder creates a Recorder writing into dir. The directory is created
// on the first Start call.
func NewRecorder(mux serialmux.SerialMuxInterface, dir string, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		mux:    mux,
		dir:    dir,
		logger: logger,
	}
}

// Active reports whether a recording is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Start begins a new recording and asks the board to stream. An empty name
// gets a timestamped default. Returns the recording file path.
func (r *Recorder) Start(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return "", fmt.Errorf("capture already in progress at %s", r.path)
	}

	if name == "" {
		name = "capture_" + time.Now().Format("20060102_150405")
	}
	name = sanitizeName(name)

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create capture dir: %w", err)
	}

	path := filepath.Join(r.dir, name+".txt")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create recording file: %w", err)
	}
	if _, err := file.WriteString(recordingHeader); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write recording header: %w", err)
	}

	id, ch := r.mux.Subscribe()

	r.active = true
	r.file = file
	r.path = path
	r.rows = 0
	r.subID = id

	r.wg.Add(1)
	go r.consume(ch)

	if err := r.mux.SendCommand("S"); err != nil {
		r.logger.Printf("WARNING: failed to request stream start: %v", err)
	}

	r.logger.Printf("capture started: %s", path)
	return path, nil
}

// Stop ends the active recording, asks the board to stop streaming, and
// returns the file path and the number of sample rows captured.
func (r *Recorder) Stop() (string, int, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return "", 0, fmt.Errorf("no capture in progress")
	}
	id := r.subID
	r.mu.Unlock()

	if err := r.mux.SendCommand("X"); err != nil {
		r.logger.Printf("WARNING: failed to request stream stop: %v", err)
	}

	// Unsubscribe closes the channel; the consumer drains and exits.
	r.mux.Unsubscribe(id)
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	path, rows := r.path, r.rows
	err := r.file.Close()
	r.active = false
	r.file = nil
	if err != nil {
		return path, rows, fmt.Errorf("failed to close recording file: %w", err)
	}

	r.logger.Printf("capture stopped: %s (%d rows)", path, rows)
	return path, rows, nil
}

// consume drains the subscription channel until it closes, appending valid
// sample rows to the recording file.
func (r *Recorder) consume(ch chan string) {
	defer r.wg.Done()
	for line := range ch {
		r.handleLine(line)
	}
}

func (r *Recorder) handleLine(line string) {
	switch serialmux.ClassifyPayload(line) {
	case serialmux.EventTypeSampleRow:
	case serialmux.EventTypeHeader, serialmux.EventTypeStatus:
		return
	default:
		r.logger.Printf("ERROR: invalid input row skipped: %q", line)
		return
	}

	if _, err := ingest.ParseRow(strings.TrimSpace(line)); err != nil {
		r.logger.Printf("ERROR: invalid input row skipped: %v", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	if _, err := r.file.WriteString(strings.TrimSpace(line) + "\n"); err != nil {
		r.logger.Printf("ERROR: failed to append sample row: %v", err)
		return
	}
	r.rows++
}

// sanitizeName strips path separators and other filesystem-hostile
// characters from a user-supplied recording name.
func sanitizeName(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return c
		case c == '-' || c == '_' || c == '.':
			return c
		default:
			return '_'
		}
	}, name)
}
