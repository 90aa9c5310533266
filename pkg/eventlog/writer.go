// Package eventlog provides an append-only audit trail of case activity
// written to daily rotated JSONL files.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an audit event.
type Kind string

const (
	KindMessage   Kind = "MESSAGE"
	KindCycle     Kind = "CYCLE"
	KindDecision  Kind = "DECISION"
	KindStatus    Kind = "STATUS"
	KindRejection Kind = "REJECTION"
	KindError     Kind = "ERROR"
)

// Event is a single audit record for a case.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	CaseID    string    `json:"case_id"`
	Kind      Kind      `json:"kind"`
	Stage     string    `json:"stage,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Intent    string    `json:"intent,omitempty"`
	PackID    string    `json:"pack_id,omitempty"`
	Tokens    int       `json:"tokens,omitempty"`
	CostUSD   float64   `json:"cost_usd,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// NewEvent creates an event with a fresh ID and timestamp.
func NewEvent(caseID string, kind Kind) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		CaseID:    caseID,
		Kind:      kind,
	}
}

// Writer handles structured logging of case events to daily rotated JSONL files.
type Writer struct {
	logDir       string
	currentFile  *os.File
	currentDate  string
	mu           sync.Mutex
	rotationHour int // Hour of day to rotate (0-23)
}

// NewWriter creates a new event log writer with daily rotation in the specified directory.
func NewWriter(logDir string, rotationHours int) (*Writer, error) {
	// Create logs directory if it doesn't exist.
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Default to 24 hours (daily rotation at midnight) if invalid
	if rotationHours <= 0 {
		rotationHours = 24
	}

	writer := &Writer{
		logDir:       logDir,
		rotationHour: rotationHours,
	}

	// Initialize with current log file.
	if err := writer.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize log file: %w", err)
	}

	return writer, nil
}

// Write appends an event to the current log file with automatic rotation.
func (w *Writer) Write(ev *Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Check if we need to rotate.
	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	jsonData, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	// Write JSON line.
	if _, err := w.currentFile.Write(jsonData); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	// Add newline for JSONL format.
	if _, err := w.currentFile.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	// Ensure data is written to disk.
	if err := w.currentFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	return nil
}

func (w *Writer) rotateIfNeeded() error {
	now := time.Now()
	newDate := now.Format("2006-01-02")

	// Check if we need to rotate (new day or no current file)
	if w.currentFile == nil || w.currentDate != newDate {
		return w.rotate(newDate)
	}

	return nil
}

func (w *Writer) rotate(newDate string) error {
	// Close current file if open.
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
	}

	// Create new log file.
	filename := fmt.Sprintf("events-%s.jsonl", newDate)
	filepath := filepath.Join(w.logDir, filename)

	file, err := os.OpenFile(filepath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", filepath, err)
	}

	w.currentFile = file
	w.currentDate = newDate

	return nil
}

// Close closes the current log file and cleans up resources.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile != nil {
		err := w.currentFile.Close()
		w.currentFile = nil
		if err != nil {
			return fmt.Errorf("failed to close event log file: %w", err)
		}
	}

	return nil
}

// GetCurrentLogFile returns the path of the currently active log file.
func (w *Writer) GetCurrentLogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return ""
	}

	return filepath.Join(w.logDir, fmt.Sprintf("events-%s.jsonl", w.currentDate))
}

// ReadEvents reads and parses events from a specific log file.
func ReadEvents(logFilePath string) ([]*Event, error) {
	data, err := os.ReadFile(logFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	if len(data) == 0 {
		return []*Event{}, nil
	}

	parse := func(raw []byte) (*Event, error) {
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("failed to parse event: %w", err)
		}
		return &ev, nil
	}

	// Split by newlines to get individual JSON records.
	line := []byte{}
	var events []*Event

	for _, b := range data {
		if b == '\n' {
			if len(line) > 0 {
				ev, err := parse(line)
				if err != nil {
					return nil, err
				}
				events = append(events, ev)
				line = []byte{}
			}
		} else {
			line = append(line, b)
		}
	}

	// Handle last line if no trailing newline.
	if len(line) > 0 {
		ev, err := parse(line)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, nil
}

// CaseEvents filters a file's events down to a single case in file order.
func CaseEvents(logFilePath, caseID string) ([]*Event, error) {
	all, err := ReadEvents(logFilePath)
	if err != nil {
		return nil, err
	}

	var events []*Event
	for _, ev := range all {
		if ev.CaseID == caseID {
			events = append(events, ev)
		}
	}
	return events, nil
}

// ListLogFiles returns all event log files in the log directory.
func ListLogFiles(logDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(logDir, "events-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}

	return files, nil
}
