// Package config loads and validates the ganttly configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/ganttly/pkg/domain/version"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const configFile = "ganttly.yaml"

// AutosaveConfig tunes the save queue.
type AutosaveConfig struct {
	DelayMs      int `yaml:"delay_ms" json:"delay_ms"`
	MaxRetries   int `yaml:"max_retries" json:"max_retries"`
	RetryDelayMs int `yaml:"retry_delay_ms" json:"retry_delay_ms"`
}

// HistoryConfig tunes undo/redo.
type HistoryConfig struct {
	MaxSize int `yaml:"max_size" json:"max_size"`
}

// VersioningConfig tunes the auto-version policy and cadence.
type VersioningConfig struct {
	Enabled            bool `yaml:"enabled" json:"enabled"`
	OnAdd              bool `yaml:"on_add" json:"on_add"`
	OnDelete           bool `yaml:"on_delete" json:"on_delete"`
	OnModify           bool `yaml:"on_modify" json:"on_modify"`
	MinChangeThreshold int  `yaml:"min_change_threshold" json:"min_change_threshold"`
	KeepAutomatic      int  `yaml:"keep_automatic" json:"keep_automatic"`
	IntervalSec        int  `yaml:"interval_sec" json:"interval_sec"`
}

// RemoteConfig points a client session at a REST backend.
type RemoteConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	Token   string `yaml:"token,omitempty" json:"token,omitempty"`
}

// Config is the whole ganttly.yaml document.
type Config struct {
	ProjectID  string           `yaml:"project_id" json:"project_id"`
	Actor      string           `yaml:"actor" json:"actor"`
	ListenAddr string           `yaml:"listen_addr" json:"listen_addr"`
	Autosave   AutosaveConfig   `yaml:"autosave" json:"autosave"`
	History    HistoryConfig    `yaml:"history" json:"history"`
	Versioning VersioningConfig `yaml:"versioning" json:"versioning"`
	Remote     RemoteConfig     `yaml:"remote" json:"remote"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ProjectID:  "default",
		Actor:      "anonymous",
		ListenAddr: ":8391",
		Autosave: AutosaveConfig{
			DelayMs:      2000,
			MaxRetries:   3,
			RetryDelayMs: 1000,
		},
		History: HistoryConfig{MaxSize: 50},
		Versioning: VersioningConfig{
			Enabled:            true,
			OnAdd:              true,
			OnDelete:           true,
			OnModify:           true,
			MinChangeThreshold: 2,
			KeepAutomatic:      20,
			IntervalSec:        30,
		},
	}
}

const configSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "project_id": {"type": "string", "minLength": 1},
    "actor": {"type": "string"},
    "listen_addr": {"type": "string"},
    "autosave": {
      "type": "object",
      "properties": {
        "delay_ms": {"type": "integer", "minimum": 0},
        "max_retries": {"type": "integer", "minimum": 0},
        "retry_delay_ms": {"type": "integer", "minimum": 0}
      }
    },
    "history": {
      "type": "object",
      "properties": {
        "max_size": {"type": "integer", "minimum": 1}
      }
    },
    "versioning": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "on_add": {"type": "boolean"},
        "on_delete": {"type": "boolean"},
        "on_modify": {"type": "boolean"},
        "min_change_threshold": {"type": "integer", "minimum": 0},
        "keep_automatic": {"type": "integer", "minimum": 0},
        "interval_sec": {"type": "integer", "minimum": 1}
      }
    },
    "remote": {
      "type": "object",
      "properties": {
        "base_url": {"type": "string"},
        "token": {"type": "string"}
      }
    }
  },
  "required": ["project_id"]
}`

var configSchemaLoader = gojsonschema.NewStringLoader(configSchemaJSON)

// Load reads root/.ganttly/ganttly.yaml, applies env overrides, and
// validates the result. A missing file yields the defaults.
func Load(root string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(root, ".ganttly", configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config document.
func Save(root string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := Validate(cfg); err != nil {
		return err
	}

	dir := filepath.Join(root, ".ganttly")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, configFile), data, 0600)
}

// Validate checks the document against the config schema.
func Validate(cfg *Config) error {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config for validation: %w", err)
	}

	result, err := gojsonschema.Validate(configSchemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("config schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// AutosaveDelay returns the debounce window as a duration.
func (c *Config) AutosaveDelay() time.Duration {
	return time.Duration(c.Autosave.DelayMs) * time.Millisecond
}

// RetryDelay returns the backoff base as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Autosave.RetryDelayMs) * time.Millisecond
}

// VersionInterval returns the auto-version cadence as a duration.
func (c *Config) VersionInterval() time.Duration {
	return time.Duration(c.Versioning.IntervalSec) * time.Second
}

// Policy converts the versioning section into the domain policy.
func (c *Config) Policy() version.Policy {
	return version.Policy{
		Enabled:            c.Versioning.Enabled,
		OnAdd:              c.Versioning.OnAdd,
		OnDelete:           c.Versioning.OnDelete,
		OnModify:           c.Versioning.OnModify,
		MinChangeThreshold: c.Versioning.MinChangeThreshold,
		KeepAutomatic:      c.Versioning.KeepAutomatic,
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GANTTLY_PROJECT_ID"); v != "" {
		cfg.ProjectID = v
	}
	if v := os.Getenv("GANTTLY_ACTOR"); v != "" {
		cfg.Actor = v
	}
	if v := os.Getenv("GANTTLY_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("GANTTLY_REMOTE_URL"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv("GANTTLY_REMOTE_TOKEN"); v != "" {
		cfg.Remote.Token = v
	}
	if v := os.Getenv("GANTTLY_AUTOSAVE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Autosave.DelayMs = n
		}
	}
}
