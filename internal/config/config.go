package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig     `json:"server"`
	Log         LogConfig        `json:"log"`
	Providers   []ProviderConfig `json:"providers" validate:"required,min=1,dive"`
	Generation  GenerationConfig `json:"generation"`
	Embedding   EmbeddingConfig  `json:"embedding"`
	Database    DatabaseConfig   `json:"database"`
	VectorStore string           `json:"vector_store" validate:"oneof=qdrant memory"`
	Technique   TechniqueConfig  `json:"technique"`
	Session     SessionConfig    `json:"session"`
	Brainstorm  BrainstormConfig `json:"brainstorm"`
	PromptsDir  string           `json:"prompts_dir"`
}

type ServerConfig struct {
	Port int `json:"port" validate:"min=1,max=65535"`
}

type LogConfig struct {
	Level      string `json:"level" validate:"oneof=debug info warn error"`
	Format     string `json:"format" validate:"oneof=console json"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

type ProviderConfig struct {
	ID       string            `json:"id" validate:"required"`
	Type     string            `json:"type" validate:"oneof=openai anthropic"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Extra    map[string]string `json:"extra,omitempty"`
}

type GenerationConfig struct {
	Model          string   `json:"model" validate:"required"`
	Attempts       int      `json:"attempts" validate:"min=1"`
	Provider       string   `json:"provider"`
	Fallbacks      []string `json:"fallbacks"`
	TimeoutSeconds int      `json:"timeout_seconds" validate:"min=1"`
}

type EmbeddingConfig struct {
	Provider       string `json:"provider" validate:"omitempty,oneof=api local"`
	Endpoint       string `json:"endpoint"`
	Model          string `json:"model" validate:"required"`
	APIKey         string `json:"api_key"`
	Dimension      int    `json:"dimension" validate:"min=0"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type TechniqueConfig struct {
	Backend    string `json:"backend" validate:"oneof=qdrant postgres none"`
	Collection string `json:"collection"`
	Table      string `json:"table"`
	Migrate    bool   `json:"migrate"`
}

type SessionConfig struct {
	TTLSeconds      int `json:"ttl_seconds" validate:"min=0"`
	CleanupSeconds  int `json:"cleanup_seconds" validate:"min=0"`
	MaxAssociations int `json:"max_associations" validate:"min=1"`
}

type BrainstormConfig struct {
	Affirmative            string `json:"affirmative" validate:"required"`
	AssociationSeconds     int    `json:"association_seconds" validate:"min=1"`
	MinAssociations        int    `json:"min_associations" validate:"min=0,ltefield=MaxAssociations"`
	MaxAssociations        int    `json:"max_associations" validate:"min=1"`
	RequireMinAssociations bool   `json:"require_min_associations"`
	KeywordTopK            int    `json:"keyword_top_k" validate:"min=1"`
	TechniqueTopK          int    `json:"technique_top_k" validate:"min=0"`
	TechniqueExcerpt       int    `json:"technique_excerpt" validate:"min=1"`
}

// TTL returns the idle time after which a session is abandoned.
func (c SessionConfig) TTL() time.Duration { return time.Duration(c.TTLSeconds) * time.Second }

// CleanupInterval returns how often abandoned sessions are swept.
func (c SessionConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupSeconds) * time.Second
}

// AssociationDeadline returns the time limit of one association phase.
func (c BrainstormConfig) AssociationDeadline() time.Duration {
	return time.Duration(c.AssociationSeconds) * time.Second
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable references,
// fills defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	cfg := Default()
	if err := json.Unmarshal([]byte(resolved), cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	cfg.fill()
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used for every field a file leaves out.
func Default() *Config {
	return &Config{
		Server:      ServerConfig{Port: 8080},
		Log:         LogConfig{Level: "info", Format: "console", MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30},
		Generation:  GenerationConfig{Attempts: 3, TimeoutSeconds: 120},
		Embedding:   EmbeddingConfig{Provider: "api", TimeoutSeconds: 30},
		Database:    DatabaseConfig{Qdrant: QdrantConfig{Host: "localhost", Port: 6334}},
		VectorStore: "qdrant",
		Technique:   TechniqueConfig{Backend: "qdrant"},
		Session:     SessionConfig{TTLSeconds: 3600, CleanupSeconds: 60, MaxAssociations: 20},
		Brainstorm: BrainstormConfig{
			Affirmative:        "yes",
			AssociationSeconds: 30,
			MinAssociations:    10,
			MaxAssociations:    20,
			KeywordTopK:        7,
			TechniqueTopK:      3,
			TechniqueExcerpt:   500,
		},
	}
}

// fill restores defaults for fields a file set to their zero value.
func (c *Config) fill() {
	for i := range c.Providers {
		if c.Providers[i].Type == "" {
			c.Providers[i].Type = "openai"
		}
	}
	if c.Session.MaxAssociations < c.Brainstorm.MaxAssociations {
		c.Session.MaxAssociations = c.Brainstorm.MaxAssociations
	}
}
