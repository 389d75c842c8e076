package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DOCENT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "DOCENT_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "document.path", typ: kString, env: "DOCENT_DOCUMENT_PATH",
		apply:   func(cfg *Config, v any) { cfg.Document.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Document.Path },
	},
	{
		key: "document.subject", typ: kString, env: "DOCENT_DOCUMENT_SUBJECT",
		apply:   func(cfg *Config, v any) { cfg.Document.Subject = v.(string) },
		extract: func(cfg Config) any { return cfg.Document.Subject },
	},
	{
		key: "genai.api_key", typ: kString, env: "GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.GenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.GenAI.APIKey },
	},
	{
		key: "genai.model", typ: kString, env: "DOCENT_GENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.GenAI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.GenAI.Model },
	},
	{
		key: "speech.enabled", typ: kBool, env: "DOCENT_SPEECH_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Speech.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Speech.Enabled },
	},
	{
		key: "policy.refusal", typ: kString, env: "DOCENT_POLICY_REFUSAL",
		apply:   func(cfg *Config, v any) { cfg.Policy.Refusal = v.(string) },
		extract: func(cfg Config) any { return cfg.Policy.Refusal },
	},
	{
		key: "policy.greeting", typ: kString, env: "DOCENT_POLICY_GREETING",
		apply:   func(cfg *Config, v any) { cfg.Policy.Greeting = v.(string) },
		extract: func(cfg Config) any { return cfg.Policy.Greeting },
	},
	{
		key: "policy.history_window", typ: kInt, env: "DOCENT_POLICY_HISTORY_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Policy.HistoryWindow = v.(int) },
		extract: func(cfg Config) any { return cfg.Policy.HistoryWindow },
	},
	{
		key: "policy.default_language", typ: kString, env: "DOCENT_DEFAULT_LANGUAGE",
		apply:   func(cfg *Config, v any) { cfg.Policy.DefaultLanguage = v.(string) },
		extract: func(cfg Config) any { return cfg.Policy.DefaultLanguage },
	},
	{
		key: "policy.default_length", typ: kString, env: "DOCENT_DEFAULT_LENGTH",
		apply:   func(cfg *Config, v any) { cfg.Policy.DefaultLength = v.(string) },
		extract: func(cfg Config) any { return cfg.Policy.DefaultLength },
	},
	{
		key: "feedback.path", typ: kString, env: "DOCENT_FEEDBACK_PATH",
		apply:   func(cfg *Config, v any) { cfg.Feedback.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Feedback.Path },
	},
	{
		key: "log.level", typ: kString, env: "DOCENT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the file backend.
func SetKey(key, value string) error {
	b := newFileBackend()

	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
		}
		switch s.typ {
		case kString, kBool:
			return b.SetString(key, value)
		case kInt:
			i, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer value for %s: %w", key, err)
			}
			return b.SetInt(key, i)
		}
	}

	return fmt.Errorf("unknown config key: %q", key)
}
