package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Document DocumentConfig
	GenAI    GenAIConfig
	Speech   SpeechConfig
	Policy   PolicyConfig
	Feedback FeedbackConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type DocumentConfig struct {
	Path    string
	Subject string
}

type GenAIConfig struct {
	APIKey string
	Model  string
}

type SpeechConfig struct {
	Enabled bool
}

type PolicyConfig struct {
	Refusal         string
	Greeting        string
	HistoryWindow   int
	DefaultLanguage string
	DefaultLength   string
}

type FeedbackConfig struct {
	Path string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Document: DocumentConfig{
			Path:    "document.pdf",
			Subject: "the provided document",
		},
		GenAI: GenAIConfig{
			Model: "gemini-1.5-flash-8b",
		},
		Speech: SpeechConfig{
			Enabled: true,
		},
		Policy: PolicyConfig{
			HistoryWindow:   12,
			DefaultLanguage: "English",
			DefaultLength:   "short",
		},
		Feedback: FeedbackConfig{
			Path: filepath.Join(dataDir, "feedback.csv"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "docent-data"
		}
	}
	return filepath.Join(dir, "docent")
}

// Load reads configuration from a .env file (if present), the JSON config
// backend at $XDG_CONFIG_HOME/docent/config.json, and DOCENT_* environment
// variables, in increasing precedence.
//
// The generation API key is required and is read only from the environment
// (GEMINI_API_KEY); a missing key is a fatal configuration error.
func Load() (Config, error) {
	// Deployment convention keeps the API key in a .env file next to the
	// binary. Absence of the file is not an error.
	_ = godotenv.Load()

	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.GenAI.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: generation API key. " +
			"Set the GEMINI_API_KEY environment variable or add it to a .env file")
	}

	return cfg, nil
}
