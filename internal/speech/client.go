package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

const (
	defaultBaseURL = "https://translate.google.com"
	// maxChunkRunes is the longest text fragment the synthesis endpoint
	// accepts per request; longer answers are split at word boundaries and
	// the resulting MP3 segments concatenated.
	maxChunkRunes  = 200
	requestTimeout = 15 * time.Second
)

// langCodes maps the user-facing answer language to the synthesis language
// code. Languages without an entry get no audio.
var langCodes = map[string]string{
	"english": "en",
	"urdu":    "ur",
	"arabic":  "ar",
	"hindi":   "hi",
	"french":  "fr",
	"german":  "de",
	"spanish": "es",
}

// LangCode returns the synthesis language code for a user-facing language
// name. The second return value is false when synthesis is unsupported for
// that language.
func LangCode(language string) (string, bool) {
	code, ok := langCodes[strings.ToLower(strings.TrimSpace(language))]
	return code, ok
}

// Client synthesizes speech through a translate-TTS style HTTP endpoint
// that returns MP3 bytes per text fragment.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client against the public endpoint.
func New() *Client {
	return NewWithBaseURL(defaultBaseURL)
}

// NewWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Synthesize converts text to MP3 audio in the given language code. Long
// text is fetched as multiple fragments concurrently and reassembled in
// order; a failure on any fragment fails the whole call so the caller never
// attaches partial audio.
func (c *Client) Synthesize(ctx context.Context, text, langCode string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}
	if langCode == "" {
		return nil, fmt.Errorf("empty language code")
	}

	chunks := splitChunks(text, maxChunkRunes)
	segments := make([][]byte, len(chunks))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to stay polite to the endpoint.

	for i, chunk := range chunks {
		g.Go(func() error {
			b, err := c.fetchChunk(gCtx, chunk, langCode)
			if err != nil {
				return fmt.Errorf("fragment %d: %w", i, err)
			}
			segments[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var audio []byte
	for _, seg := range segments {
		audio = append(audio, seg...)
	}
	return audio, nil
}

func (c *Client) fetchChunk(ctx context.Context, chunk, langCode string) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", langCode)
	q.Set("q", chunk)

	reqURL := c.baseURL + "/translate_tts?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}
	return b, nil
}

// splitChunks breaks text into fragments of at most maxRunes runes,
// preferring word boundaries. A single word longer than maxRunes is split
// mid-word.
func splitChunks(text string, maxRunes int) []string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentRunes := 0

	for _, word := range strings.Fields(text) {
		wordRunes := utf8.RuneCountInString(word)

		if wordRunes > maxRunes {
			if currentRunes > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
				currentRunes = 0
			}
			runes := []rune(word)
			for len(runes) > maxRunes {
				chunks = append(chunks, string(runes[:maxRunes]))
				runes = runes[maxRunes:]
			}
			current.WriteString(string(runes))
			currentRunes = len(runes)
			continue
		}

		// +1 for the separating space.
		if currentRunes > 0 && currentRunes+1+wordRunes > maxRunes {
			chunks = append(chunks, current.String())
			current.Reset()
			currentRunes = 0
		}
		if currentRunes > 0 {
			current.WriteByte(' ')
			currentRunes++
		}
		current.WriteString(word)
		currentRunes += wordRunes
	}
	if currentRunes > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
