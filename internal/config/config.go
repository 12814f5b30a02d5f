// Package config provides configuration types and defaults for reactor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/reactor/internal/log"
)

// Config holds all configuration options for reactor.
type Config struct {
	Reactor ReactorConfig   `mapstructure:"reactor"`
	Log     LogConfig       `mapstructure:"log"`
	Tracing TracingConfig   `mapstructure:"tracing"`
	Watch   WatchConfig     `mapstructure:"watch"`
	Flags   map[string]bool `mapstructure:"flags"`
}

// ReactorConfig holds the timing and diagnostics tuning of the core.
type ReactorConfig struct {
	// UnlistenDelay is how long a reactor keeps its handlers installed after
	// unmount, so teardown traffic from its descendants is still answered.
	UnlistenDelay time.Duration `mapstructure:"unlisten_delay"`

	// ActorUnlistenDelay is the same grace period for actors.
	ActorUnlistenDelay time.Duration `mapstructure:"actor_unlisten_delay"`

	// SubscribeDefer delays a subscriber's registration after a reactor was
	// found, letting sibling publishers mount first.
	SubscribeDefer time.Duration `mapstructure:"subscribe_defer"`

	// ProbeRetry paces the search for an enclosing reactor.
	ProbeRetry RetryConfig `mapstructure:"probe_retry"`

	// SubscribeRetry paces re-registration of unmatched subscribers.
	SubscribeRetry RetryConfig `mapstructure:"subscribe_retry"`

	Suggestions SuggestionConfig `mapstructure:"suggestions"`
}

// RetryConfig is an exponential backoff schedule.
type RetryConfig struct {
	Base        time.Duration `mapstructure:"base"`
	Factor      float64       `mapstructure:"factor"`
	Max         time.Duration `mapstructure:"max"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// SuggestionConfig tunes the near-miss event name suggestions attached to
// unmatched subscriptions.
type SuggestionConfig struct {
	// Threshold is the largest accepted edit distance divided by the length
	// of the requested name. Zero disables suggestions.
	Threshold float64 `mapstructure:"threshold"`

	// Max caps the number of names reported.
	Max int `mapstructure:"max"`

	// CacheTTL is how long computed suggestions stay cached.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// LogConfig configures the file logger.
type LogConfig struct {
	// File enables logging to the given path. Empty disables file logging.
	File string `mapstructure:"file"`

	// Level is the minimum level written: debug, info, warn or error.
	Level string `mapstructure:"level"`
}

// TracingConfig holds distributed tracing configuration for dispatches.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/reactor/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// WatchConfig controls live reload of the config file.
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/reactor/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "reactor", "traces", "traces.jsonl")
}

// DefaultReactor returns the stock timing of the core.
func DefaultReactor() ReactorConfig {
	return ReactorConfig{
		UnlistenDelay:      100 * time.Millisecond,
		ActorUnlistenDelay: 50 * time.Millisecond,
		SubscribeDefer:     time.Millisecond,
		ProbeRetry: RetryConfig{
			Base:        10 * time.Millisecond,
			Factor:      2,
			Max:         time.Second,
			MaxAttempts: 8,
		},
		SubscribeRetry: RetryConfig{
			Base:        100 * time.Millisecond,
			Factor:      1.27,
			Max:         5 * time.Second,
			MaxAttempts: 12,
		},
		Suggestions: SuggestionConfig{
			Threshold: 0.6,
			Max:       5,
			CacheTTL:  time.Minute,
		},
	}
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Reactor: DefaultReactor(),
		Log: LogConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from config dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 250 * time.Millisecond,
		},
		Flags: map[string]bool{
			"dispatch-trace":        false,
			"near-miss-suggestions": true,
		},
	}
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if err := ValidateReactor(c.Reactor); err != nil {
		return err
	}
	if err := ValidateLog(c.Log); err != nil {
		return err
	}
	return ValidateTracing(c.Tracing)
}

// ValidateReactor checks timing and suggestion settings for errors.
func ValidateReactor(r ReactorConfig) error {
	if r.UnlistenDelay < 0 {
		return fmt.Errorf("reactor.unlisten_delay must not be negative, got %s", r.UnlistenDelay)
	}
	if r.ActorUnlistenDelay < 0 {
		return fmt.Errorf("reactor.actor_unlisten_delay must not be negative, got %s", r.ActorUnlistenDelay)
	}
	if r.SubscribeDefer < 0 {
		return fmt.Errorf("reactor.subscribe_defer must not be negative, got %s", r.SubscribeDefer)
	}
	if err := validateRetry("reactor.probe_retry", r.ProbeRetry); err != nil {
		return err
	}
	if err := validateRetry("reactor.subscribe_retry", r.SubscribeRetry); err != nil {
		return err
	}
	if r.Suggestions.Threshold < 0 || r.Suggestions.Threshold > 1 {
		return fmt.Errorf("reactor.suggestions.threshold must be between 0.0 and 1.0, got %v", r.Suggestions.Threshold)
	}
	if r.Suggestions.Max < 0 {
		return fmt.Errorf("reactor.suggestions.max must not be negative, got %d", r.Suggestions.Max)
	}
	return nil
}

func validateRetry(path string, r RetryConfig) error {
	if r.Base <= 0 {
		return fmt.Errorf("%s.base must be positive, got %s", path, r.Base)
	}
	if r.Factor < 1 {
		return fmt.Errorf("%s.factor must be at least 1, got %v", path, r.Factor)
	}
	if r.Max != 0 && r.Max < r.Base {
		return fmt.Errorf("%s.max (%s) must not be below base (%s)", path, r.Max, r.Base)
	}
	if r.MaxAttempts < 0 {
		return fmt.Errorf("%s.max_attempts must not be negative, got %d", path, r.MaxAttempts)
	}
	return nil
}

// ValidateLog checks the log level name.
func ValidateLog(l LogConfig) error {
	switch l.Level {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("log.level must be \"debug\", \"info\", \"warn\", or \"error\", got %q", l.Level)
	}
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Reactor Configuration

reactor:
  # Grace period before an unmounted reactor stops answering events
  unlisten_delay: 100ms
  # Same for actors
  actor_unlisten_delay: 50ms
  # Delay between finding a reactor and registering a subscriber
  subscribe_defer: 1ms

  # Search for the enclosing reactor
  probe_retry:
    base: 10ms
    factor: 2
    max: 1s
    max_attempts: 8

  # Re-registration of subscribers whose event is not published yet
  subscribe_retry:
    base: 100ms
    factor: 1.27
    max: 5s
    max_attempts: 12

  # Near-miss event names reported for unmatched subscriptions
  suggestions:
    threshold: 0.6
    max: 5
    cache_ttl: 1m

log:
  # file: reactor.log
  level: info

# Reload reactor tuning when this file changes
watch:
  enabled: true
  debounce: 250ms

flags:
  dispatch-trace: false
  near-miss-suggestions: true

# Distributed tracing (one span per dispatch)
# tracing:
#   enabled: true
#   exporter: file
#   file_path: ~/.config/reactor/traces/traces.jsonl
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1  # Sample 10% of traces
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
