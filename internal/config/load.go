package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults registers every default value on v so partial files and
// environment overrides merge over them.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	r := d.Reactor
	v.SetDefault("reactor.unlisten_delay", r.UnlistenDelay)
	v.SetDefault("reactor.actor_unlisten_delay", r.ActorUnlistenDelay)
	v.SetDefault("reactor.subscribe_defer", r.SubscribeDefer)
	setRetryDefaults(v, "reactor.probe_retry", r.ProbeRetry)
	setRetryDefaults(v, "reactor.subscribe_retry", r.SubscribeRetry)
	v.SetDefault("reactor.suggestions.threshold", r.Suggestions.Threshold)
	v.SetDefault("reactor.suggestions.max", r.Suggestions.Max)
	v.SetDefault("reactor.suggestions.cache_ttl", r.Suggestions.CacheTTL)

	v.SetDefault("log.level", d.Log.Level)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)

	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.debounce", d.Watch.Debounce)

	v.SetDefault("flags", d.Flags)
}

func setRetryDefaults(v *viper.Viper, prefix string, r RetryConfig) {
	v.SetDefault(prefix+".base", r.Base)
	v.SetDefault(prefix+".factor", r.Factor)
	v.SetDefault(prefix+".max", r.Max)
	v.SetDefault(prefix+".max_attempts", r.MaxAttempts)
}

// Load reads the config file at path over the defaults and validates it.
func Load(path string) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Decode(v)
}

// Decode unmarshals v into a Config and validates the result.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
