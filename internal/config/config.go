/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package config loads the user configuration: a YAML file in the user
// config directory, overridden by AGENTCHAR_* environment variables. The
// telemetry token is never written to the file; it lives in the OS keyring.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// AgentConfig tunes the character runtime.
type AgentConfig struct {
	Language          string `yaml:"language"` // BCP 47; empty uses $LANG
	GreetingAnimation string `yaml:"greeting_animation"`
	ClosingAnimation  string `yaml:"closing_animation"`
	FrameUnitMs       int    `yaml:"frame_unit_ms"`
	RedrawIntervalMs  int    `yaml:"redraw_interval_ms"`
	IdleIntervalMs    int    `yaml:"idle_interval_ms"`
	TicksPerLevel     int    `yaml:"ticks_per_level"`
	MaxIdleLevel      int    `yaml:"max_idle_level"`
	RandomTimeoutMs   int    `yaml:"random_timeout_ms"`
	BalloonMs         int    `yaml:"balloon_ms"`
	Scale             int    `yaml:"scale"`
}

type AudioConfig struct {
	Enabled    bool `yaml:"enabled"`
	SampleRate int  `yaml:"sample_rate"`
}

type CatalogConfig struct {
	// DSN is a SQLite file path or a postgres:// URL. Empty uses the
	// default file next to the config.
	DSN string `yaml:"dsn"`
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

type TelemetryConfig struct {
	EventsURL string `yaml:"events_url"`
	CrashURL  string `yaml:"crash_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// AppConfig is the whole user configuration.
// config_version is bumped when the structure changes incompatibly.
type AppConfig struct {
	ConfigVersion int             `yaml:"config_version"`
	General       GeneralConfig   `yaml:"general"`
	Agent         AgentConfig     `yaml:"agent"`
	Audio         AudioConfig     `yaml:"audio"`
	Catalog       CatalogConfig   `yaml:"catalog"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	Logging       LoggingConfig   `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Agent: AgentConfig{
			GreetingAnimation: "Greeting",
			ClosingAnimation:  "GoodBye",
			FrameUnitMs:       10,
			RedrawIntervalMs:  16,
			IdleIntervalMs:    10000,
			TicksPerLevel:     12,
			MaxIdleLevel:      3,
			RandomTimeoutMs:   5000,
			BalloonMs:         10000,
			Scale:             2,
		},
		Audio:     AudioConfig{Enabled: true, SampleRate: 44100},
		Telemetry: TelemetryConfig{TimeoutMs: 1500},
		Logging:   LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile     = "AGENTCHAR_CONFIG"
	EnvLanguage       = "AGENTCHAR_LANGUAGE"
	EnvFrameUnitMs    = "AGENTCHAR_FRAME_UNIT_MS"
	EnvIdleIntervalMs = "AGENTCHAR_IDLE_INTERVAL_MS"
	EnvAudioEnabled   = "AGENTCHAR_AUDIO"
	EnvCatalogDSN     = "AGENTCHAR_CATALOG_DSN"
	EnvTelemetryOptIn = "AGENTCHAR_TELEMETRY_OPT_IN"
	EnvTelemetryURL   = "AGENTCHAR_TELEMETRY_URL"
	EnvCrashURL       = "AGENTCHAR_CRASH_UPLOAD_URL"
	EnvLogLevel       = "AGENTCHAR_LOG_LEVEL"
	EnvLogFormat      = "AGENTCHAR_LOG_FORMAT"
	EnvLogSource      = "AGENTCHAR_LOG_SOURCE"
	EnvLogFile        = "AGENTCHAR_LOG_FILE"
)

// overrides mirrors the env-settable fields. Nil means "not set".
type overrides struct {
	Language       *string `env:"AGENTCHAR_LANGUAGE"`
	FrameUnitMs    *int    `env:"AGENTCHAR_FRAME_UNIT_MS"`
	IdleIntervalMs *int    `env:"AGENTCHAR_IDLE_INTERVAL_MS"`
	AudioEnabled   *bool   `env:"AGENTCHAR_AUDIO"`
	CatalogDSN     *string `env:"AGENTCHAR_CATALOG_DSN"`
	TelemetryOptIn *bool   `env:"AGENTCHAR_TELEMETRY_OPT_IN"`
	TelemetryURL   *string `env:"AGENTCHAR_TELEMETRY_URL"`
	CrashURL       *string `env:"AGENTCHAR_CRASH_UPLOAD_URL"`
	LogLevel       *string `env:"AGENTCHAR_LOG_LEVEL"`
	LogFormat      *string `env:"AGENTCHAR_LOG_FORMAT"`
	LogSource      *bool   `env:"AGENTCHAR_LOG_SOURCE"`
	LogFile        *string `env:"AGENTCHAR_LOG_FILE"`
}

// ConfigDir returns the per-user directory holding config and catalog.
func ConfigDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "AgentChar")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "AgentChar")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "agentchar")
		} else if h := os.Getenv("HOME"); h != "" {
			base = filepath.Join(h, ".config", "agentchar")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the config file path; AGENTCHAR_CONFIG wins.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultCatalogDSN is the SQLite catalog path used when none is configured.
func DefaultCatalogDSN() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "catalog.db"), nil
}

// Load reads the config file (if present), applies defaults and env
// overrides, and fetches the telemetry token from the keyring.
// A malformed file or env value is an error; a missing file is not.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if err := loadFile(path, &cfg); err != nil {
		return cfg, "", err
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, "", err
	}
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, nil
}

func loadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var fileCfg AppConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	mergeInto(cfg, &fileCfg)
	return nil
}

// Save writes the config YAML and stores token in the keyring if non-empty.
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans are copied so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn

	a, s := &dst.Agent, &src.Agent
	setStr(&a.Language, s.Language)
	setStr(&a.GreetingAnimation, s.GreetingAnimation)
	setStr(&a.ClosingAnimation, s.ClosingAnimation)
	setInt(&a.FrameUnitMs, s.FrameUnitMs)
	setInt(&a.RedrawIntervalMs, s.RedrawIntervalMs)
	setInt(&a.IdleIntervalMs, s.IdleIntervalMs)
	setInt(&a.TicksPerLevel, s.TicksPerLevel)
	setInt(&a.MaxIdleLevel, s.MaxIdleLevel)
	setInt(&a.RandomTimeoutMs, s.RandomTimeoutMs)
	setInt(&a.BalloonMs, s.BalloonMs)
	setInt(&a.Scale, s.Scale)

	dst.Audio.Enabled = src.Audio.Enabled
	setInt(&dst.Audio.SampleRate, src.Audio.SampleRate)
	setStr(&dst.Catalog.DSN, src.Catalog.DSN)

	setStr(&dst.Telemetry.EventsURL, src.Telemetry.EventsURL)
	setStr(&dst.Telemetry.CrashURL, src.Telemetry.CrashURL)
	setInt(&dst.Telemetry.TimeoutMs, src.Telemetry.TimeoutMs)

	if v := strings.TrimSpace(src.Logging.Level); v != "" {
		dst.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Logging.Format); v != "" {
		dst.Logging.Format = strings.ToLower(v)
	}
	dst.Logging.Source = src.Logging.Source
	setStr(&dst.Logging.File, src.Logging.File)
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func applyEnvOverrides(cfg *AppConfig) error {
	var o overrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.Language != nil {
		cfg.Agent.Language = strings.TrimSpace(*o.Language)
	}
	if o.FrameUnitMs != nil {
		cfg.Agent.FrameUnitMs = *o.FrameUnitMs
	}
	if o.IdleIntervalMs != nil {
		cfg.Agent.IdleIntervalMs = *o.IdleIntervalMs
	}
	if o.AudioEnabled != nil {
		cfg.Audio.Enabled = *o.AudioEnabled
	}
	if o.CatalogDSN != nil {
		cfg.Catalog.DSN = strings.TrimSpace(*o.CatalogDSN)
	}
	if o.TelemetryOptIn != nil {
		cfg.General.TelemetryOptIn = *o.TelemetryOptIn
	}
	if o.TelemetryURL != nil {
		cfg.Telemetry.EventsURL = strings.TrimSpace(*o.TelemetryURL)
	}
	if o.CrashURL != nil {
		cfg.Telemetry.CrashURL = strings.TrimSpace(*o.CrashURL)
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*o.LogLevel))
	}
	if o.LogFormat != nil {
		cfg.Logging.Format = strings.ToLower(strings.TrimSpace(*o.LogFormat))
	}
	if o.LogSource != nil {
		cfg.Logging.Source = *o.LogSource
	}
	if o.LogFile != nil {
		cfg.Logging.File = strings.TrimSpace(*o.LogFile)
	}
	return nil
}

var envKeys = map[string]string{
	"agent.language":             EnvLanguage,
	"agent.frame_unit_ms":        EnvFrameUnitMs,
	"agent.idle_interval_ms":     EnvIdleIntervalMs,
	"audio.enabled":              EnvAudioEnabled,
	"catalog.dsn":                EnvCatalogDSN,
	"general.telemetry_opt_in":   EnvTelemetryOptIn,
	"telemetry.events_url":       EnvTelemetryURL,
	"telemetry.crash_url":        EnvCrashURL,
	"logging.level":              EnvLogLevel,
	"logging.format":             EnvLogFormat,
	"logging.source":             EnvLogSource,
	"logging.file":               EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok {
		return "", false
	}
	if _, set := os.LookupEnv(name); !set {
		return "", false
	}
	return name, true
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (a AgentConfig) FrameUnit() time.Duration      { return ms(a.FrameUnitMs) }
func (a AgentConfig) RedrawInterval() time.Duration { return ms(a.RedrawIntervalMs) }
func (a AgentConfig) IdleInterval() time.Duration   { return ms(a.IdleIntervalMs) }
func (a AgentConfig) RandomTimeout() time.Duration  { return ms(a.RandomTimeoutMs) }
func (a AgentConfig) BalloonDuration() time.Duration {
	return ms(a.BalloonMs)
}

func (t TelemetryConfig) Timeout() time.Duration {
	if t.TimeoutMs <= 0 {
		return ms(Defaults().Telemetry.TimeoutMs)
	}
	return ms(t.TimeoutMs)
}
