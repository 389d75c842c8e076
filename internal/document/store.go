package document

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
)

// ErrNoExtractableText is returned when the document yields no text at all.
var ErrNoExtractableText = errors.New("document has no extractable text")

// Info describes the loaded document.
type Info struct {
	Path  string `json:"path"`
	Pages int    `json:"pages"`
	Bytes int    `json:"bytes"`
}

// Store loads the text of one fixed PDF document. Extraction runs once per
// process; the result is cached and treated as immutable for the lifetime
// of the Store.
type Store struct {
	path string

	once sync.Once
	text string
	info Info
	err  error

	// extract is swapped out in tests.
	extract func(path string) (string, int, error)
}

// New creates a Store for the document at path. The file is not touched
// until Text or Load is first called.
func New(path string) *Store {
	return &Store{path: path, extract: extractPDF}
}

// Load forces extraction and returns the document info. It is safe to call
// from multiple goroutines; only the first call does any work.
func (s *Store) Load() (Info, error) {
	s.once.Do(func() {
		if _, statErr := os.Stat(s.path); statErr != nil {
			s.err = fmt.Errorf("document %s: %w", s.path, statErr)
			return
		}
		text, pages, err := s.extract(s.path)
		if err != nil {
			s.err = fmt.Errorf("extracting text from %s: %w", s.path, err)
			return
		}
		if strings.TrimSpace(text) == "" {
			s.err = fmt.Errorf("document %s: %w", s.path, ErrNoExtractableText)
			return
		}
		s.text = text
		s.info = Info{Path: s.path, Pages: pages, Bytes: len(text)}
	})
	return s.info, s.err
}

// Text returns the cached document text, extracting it on first use.
func (s *Store) Text() (string, error) {
	if _, err := s.Load(); err != nil {
		return "", err
	}
	return s.text, nil
}

// extractPDF concatenates the plain text of every page. Pages that yield no
// text contribute nothing; a page-level extraction error skips the page
// rather than failing the whole document.
func extractPDF(path string) (string, int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil || content == "" {
			continue
		}
		sb.WriteString(content)
	}
	return sb.String(), pages, nil
}
