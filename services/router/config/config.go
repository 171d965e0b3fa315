// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the router's runtime settings.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Settings
// =============================================================================

// MaxYAMLFileSize bounds the config file size (1 MB).
const MaxYAMLFileSize = 1 << 20

// Settings is the router's full runtime configuration.
//
// Description:
//
//	Values come from an optional YAML file, then environment variables
//	override field by field. Validation runs once at startup; a bad
//	configuration is fatal, never degraded.
//
// Thread Safety: Immutable after Load; safe for concurrent use.
type Settings struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// ElasticURI is the search backend address, e.g. "http://elastic:9200".
	ElasticURI string `yaml:"elastic_uri"`

	// CatalogIndex is the search index holding API descriptors.
	CatalogIndex string `yaml:"catalog_index"`

	// AsyncAPI is the downstream service base URL the router invokes.
	AsyncAPI string `yaml:"async_api"`

	// UploadDir is where received audio files are written before
	// transcription.
	UploadDir string `yaml:"upload_dir"`

	// Provider selects the chat backend for parameter extraction:
	// "groq" or "openai".
	Provider string `yaml:"provider"`

	// GroqModel overrides the default Groq model. Empty keeps the default.
	GroqModel string `yaml:"groq_model"`

	// OpenAIModel overrides the default OpenAI model. Empty keeps the
	// default.
	OpenAIModel string `yaml:"openai_model"`

	// WhisperLanguage is the ISO-639-1 hint for transcription, e.g. "ru".
	WhisperLanguage string `yaml:"whisper_language"`

	// FallbackMessage is returned when no catalog entry matches a query.
	// Empty keeps the built-in message.
	FallbackMessage string `yaml:"fallback_message"`

	// GroqAPIKey and OpenAIAPIKey are accepted from the environment only,
	// never from the YAML file.
	GroqAPIKey   string `yaml:"-"`
	OpenAIAPIKey string `yaml:"-"`
}

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultPort is the default HTTP listen port.
	DefaultPort = 8080

	// DefaultCatalogIndex is the default descriptor index name.
	DefaultCatalogIndex = "api_index"

	// DefaultUploadDir is where audio uploads land when unset.
	DefaultUploadDir = "/tmp/voice-router/uploads"

	// DefaultProvider is the default chat backend.
	DefaultProvider = "groq"

	// DefaultWhisperLanguage is the default transcription hint.
	DefaultWhisperLanguage = "ru"
)

// =============================================================================
// Loading
// =============================================================================

// Load reads settings from path (optional) and the environment.
//
// Description:
//
//	An empty path skips the file and uses defaults plus environment
//	overrides. A non-empty path must exist and parse. Environment
//	variables always win over file values.
//
// Outputs:
//
//	*Settings - The validated configuration. Never nil on success.
//	error - Non-nil if the file is unreadable, the YAML is invalid, or
//	validation fails.
func Load(path string) (*Settings, error) {
	s := &Settings{
		Port:            DefaultPort,
		CatalogIndex:    DefaultCatalogIndex,
		UploadDir:       DefaultUploadDir,
		Provider:        DefaultProvider,
		WhisperLanguage: DefaultWhisperLanguage,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if len(data) > MaxYAMLFileSize {
			return nil, fmt.Errorf("config: %s exceeds maximum size (%d > %d)",
				path, len(data), MaxYAMLFileSize)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnv(s)

	if err := s.Validate(); err != nil {
		return nil, err
	}

	slog.Info("Configuration loaded",
		slog.Int("port", s.Port),
		slog.String("elastic_uri", s.ElasticURI),
		slog.String("catalog_index", s.CatalogIndex),
		slog.String("async_api", s.AsyncAPI),
		slog.String("provider", s.Provider),
	)
	return s, nil
}

// applyEnv overlays environment variables onto s.
func applyEnv(s *Settings) {
	if v := os.Getenv("PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			s.Port = port
		}
	}
	for _, m := range []struct {
		env string
		dst *string
	}{
		{"ELASTIC_URI", &s.ElasticURI},
		{"CATALOG_INDEX", &s.CatalogIndex},
		{"ASYNC_API", &s.AsyncAPI},
		{"UPLOAD_DIR", &s.UploadDir},
		{"ROUTER_PROVIDER", &s.Provider},
		{"GROQ_MODEL", &s.GroqModel},
		{"OPENAI_MODEL", &s.OpenAIModel},
		{"WHISPER_LANGUAGE", &s.WhisperLanguage},
		{"FALLBACK_MESSAGE", &s.FallbackMessage},
		{"GROQ_API_KEY", &s.GroqAPIKey},
		{"OPENAI_API_KEY", &s.OpenAIAPIKey},
	} {
		if v := os.Getenv(m.env); v != "" {
			*m.dst = v
		}
	}
}

// Validate checks the settings for startup.
//
// Outputs:
//
//	error - Non-nil for any missing or inconsistent required value. The
//	caller treats this as fatal.
func (s *Settings) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", s.Port)
	}
	if s.ElasticURI == "" {
		return fmt.Errorf("config: elastic_uri must be set (ELASTIC_URI)")
	}
	if s.AsyncAPI == "" {
		return fmt.Errorf("config: async_api must be set (ASYNC_API)")
	}
	if s.CatalogIndex == "" {
		return fmt.Errorf("config: catalog_index must not be empty")
	}
	if s.UploadDir == "" {
		return fmt.Errorf("config: upload_dir must not be empty")
	}
	switch s.Provider {
	case "groq":
		if s.GroqAPIKey == "" {
			return fmt.Errorf("config: provider groq requires GROQ_API_KEY")
		}
	case "openai":
		if s.OpenAIAPIKey == "" {
			return fmt.Errorf("config: provider openai requires OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("config: unknown provider %q (want groq or openai)", s.Provider)
	}
	// Transcription always goes through the OpenAI audio endpoint.
	if s.OpenAIAPIKey == "" {
		return fmt.Errorf("config: transcription requires OPENAI_API_KEY")
	}
	return nil
}
