package feedback

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempLog(t *testing.T) *Log {
	t.Helper()
	return NewLog(filepath.Join(t.TempDir(), "feedback.csv"))
}

func TestRecordCreatesFileWithHeader(t *testing.T) {
	l := tempLog(t)

	if err := l.Record("great bot", "Q", "A"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	rows, err := l.Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].Question != "Q" || rows[0].Answer != "A" || rows[0].Feedback != "great bot" {
		t.Errorf("row = %+v", rows[0])
	}
	if rows[0].Timestamp.IsZero() {
		t.Error("timestamp not recorded")
	}
}

func TestRecordAppendsAndPreservesPriorRows(t *testing.T) {
	l := tempLog(t)

	if err := l.Record("first", "Q1", "A1"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	before, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}

	if err := l.Record("second", "Q2", "A2"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	after, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}

	// Appending must leave prior bytes untouched.
	if string(after[:len(before)]) != string(before) {
		t.Error("prior rows modified by append")
	}

	rows, err := l.Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[1].Feedback != "second" {
		t.Errorf("rows[1].Feedback = %q", rows[1].Feedback)
	}
}

func TestRecordEmptyFeedback(t *testing.T) {
	l := tempLog(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		if err := l.Record(text, "Q", "A"); !errors.Is(err, ErrEmptyFeedback) {
			t.Errorf("Record(%q): err = %v, want ErrEmptyFeedback", text, err)
		}
	}

	if _, err := os.Stat(l.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Error("empty feedback created the file")
	}
}

func TestRecordQuotingSurvivesSpecialCharacters(t *testing.T) {
	l := tempLog(t)

	feedbackText := "line one\nline two, with \"quotes\" and, commas"
	answer := "an answer, with commas"
	if err := l.Record(feedbackText, "Q?", answer); err != nil {
		t.Fatalf("Record: %v", err)
	}

	rows, err := l.Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if rows[0].Feedback != feedbackText {
		t.Errorf("Feedback = %q, want %q", rows[0].Feedback, feedbackText)
	}
	if rows[0].Answer != answer {
		t.Errorf("Answer = %q, want %q", rows[0].Answer, answer)
	}
}

func TestRowsMissingFile(t *testing.T) {
	l := tempLog(t)
	rows, err := l.Rows()
	if err != nil {
		t.Fatalf("Rows on missing file: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("len(rows) = %d, want 0", len(rows))
	}
}
