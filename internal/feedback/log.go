// Package feedback appends user-submitted feedback rows to a flat CSV file.
package feedback

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrEmptyFeedback is returned when the submitted feedback text is blank.
var ErrEmptyFeedback = errors.New("feedback is empty")

var header = []string{"timestamp", "question", "answer", "feedback"}

// Record is one stored feedback row.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Feedback  string    `json:"feedback"`
}

// Log appends feedback records to a CSV file with a fixed header. Rows are
// only ever appended; prior rows are never touched. Writers within the
// process are serialized; cross-process coordination is not attempted
// (single-user usage assumed).
type Log struct {
	mu   sync.Mutex
	path string
}

// NewLog creates a Log writing to path. The file is created lazily on the
// first successful Record call.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Path returns the CSV file path.
func (l *Log) Path() string {
	return l.path
}

// Record appends one row with the given feedback text and the Q/A pair it
// refers to. Blank feedback fails with ErrEmptyFeedback and writes nothing.
func (l *Log) Record(feedbackText, question, answer string) error {
	if strings.TrimSpace(feedbackText) == "" {
		return ErrEmptyFeedback
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	writeHeader := false
	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		writeHeader = true
		if dir := filepath.Dir(l.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating feedback directory: %w", err)
			}
		}
	} else if err != nil {
		return fmt.Errorf("checking feedback file: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening feedback file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	row := []string{
		time.Now().UTC().Format("2006-01-02 15:04:05"),
		question,
		answer,
		feedbackText,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("writing row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing row: %w", err)
	}
	return nil
}

// Rows reads back every stored record. A missing file yields an empty slice.
func (l *Log) Rows() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening feedback file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)
	raw, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading feedback file: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	records := make([]Record, 0, len(raw)-1)
	for i, row := range raw {
		if i == 0 {
			continue // header
		}
		ts, err := time.Parse("2006-01-02 15:04:05", row[0])
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp in row %d: %w", i, err)
		}
		records = append(records, Record{
			Timestamp: ts,
			Question:  row[1],
			Answer:    row[2],
			Feedback:  row[3],
		})
	}
	return records, nil
}
