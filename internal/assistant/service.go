// Package assistant orchestrates a single question/answer turn: prompt
// construction, generation, speech synthesis, and conversation state updates.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/docent/internal/prompt"
	"github.com/kalambet/docent/internal/session"
	"github.com/kalambet/docent/internal/speech"
)

// DocumentSource provides the cached reference document text.
type DocumentSource interface {
	Text() (string, error)
}

// Generator produces an answer for a fully built prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Synthesizer converts answer text to audio for a language code.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, langCode string) ([]byte, error)
}

// Service runs the per-turn flow. Each turn is strictly sequential:
// append question, build prompt, generate, append answer, synthesize,
// attach audio. A generation failure still yields an answer value; a
// speech failure still yields a text answer.
type Service struct {
	document DocumentSource
	builder  *prompt.Builder
	gen      Generator
	tts      Synthesizer // nil disables speech synthesis
	logger   *slog.Logger
}

// New creates a Service. Passing a nil synthesizer disables audio.
func New(document DocumentSource, builder *prompt.Builder, gen Generator, tts Synthesizer) *Service {
	return &Service{
		document: document,
		builder:  builder,
		gen:      gen,
		tts:      tts,
		logger:   slog.Default(),
	}
}

// Ask processes one user question against the session and returns the
// assistant turn appended to its history. The returned error is only
// non-nil for configuration-level failures (the document being unreadable);
// generation and speech failures are absorbed into the turn itself.
func (s *Service) Ask(ctx context.Context, sess *session.Session, question string) (session.Turn, error) {
	docText, err := s.document.Text()
	if err != nil {
		return session.Turn{}, fmt.Errorf("loading document: %w", err)
	}

	// History is captured before the question is appended so the prompt's
	// conversation block does not duplicate the current question.
	history := sess.All()
	opts := sess.Options()

	sess.Append(session.Turn{Role: session.RoleUser, Content: question})

	p := s.builder.Build(question, docText, history, opts)

	start := time.Now()
	answer, genErr := s.gen.Generate(ctx, p)
	if genErr != nil {
		// A turn always completes with a displayable answer value.
		answer = fmt.Sprintf("Error: %v", genErr)
		s.logger.Warn("generation failed", "error", genErr)
	} else {
		s.logger.Debug("generation complete",
			"duration_ms", time.Since(start).Milliseconds(),
			"answer_bytes", len(answer),
		)
	}

	turn := session.Turn{Role: session.RoleAssistant, Content: answer, CreatedAt: time.Now().UTC()}
	sess.Append(turn)

	if audio := s.synthesize(ctx, answer, opts.Language, genErr != nil); audio != nil {
		sess.AttachAudio(audio)
		turn.Audio = audio
	}

	return turn, nil
}

// synthesize returns audio for the answer or nil. Absent audio is a valid
// outcome: unsupported language, disabled synthesis, and upstream failures
// all degrade to text-only with a warning.
func (s *Service) synthesize(ctx context.Context, answer, language string, generationFailed bool) []byte {
	if s.tts == nil || generationFailed {
		return nil
	}
	code, ok := speech.LangCode(language)
	if !ok {
		s.logger.Warn("speech synthesis unsupported for language", "language", language)
		return nil
	}
	audio, err := s.tts.Synthesize(ctx, answer, code)
	if err != nil {
		s.logger.Warn("speech synthesis failed", "language", language, "error", err)
		return nil
	}
	return audio
}
