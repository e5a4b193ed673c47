package config

import (
	"fmt"
	"os"

	"eo-trader/pkg/types"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file, applies defaults for absent values
// and fails fast on invalid ones.
func Load(filename string) (types.Config, error) {
	var config types.Config

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config: %w", err)
	}

	setDefaults(&config)

	if err := validate(config); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// setDefaults sets default values for missing config fields
func setDefaults(config *types.Config) {
	// Feed defaults
	if config.Feed.ReconnectDelay == 0 {
		config.Feed.ReconnectDelay = 5
	}
	if config.Feed.PingInterval == 0 {
		config.Feed.PingInterval = 25
	}

	// Pipeline defaults
	if config.Pipeline.FineDuration == 0 {
		config.Pipeline.FineDuration = 10
	}
	if config.Pipeline.MidDuration == 0 {
		config.Pipeline.MidDuration = 60
	}
	if config.Pipeline.CoarseDuration == 0 {
		config.Pipeline.CoarseDuration = 300
	}
	if config.Pipeline.TrendConfirmationCount == 0 {
		config.Pipeline.TrendConfirmationCount = 3
	}
	if config.Pipeline.WickRatioThreshold == 0 {
		config.Pipeline.WickRatioThreshold = 2.0
	}
	if config.Pipeline.CooldownDuration == 0 {
		config.Pipeline.CooldownDuration = 60
	}
	if config.Pipeline.StaleAfterIntervals == 0 {
		config.Pipeline.StaleAfterIntervals = 3
	}

	// Storage defaults
	if config.Storage.Path == "" {
		config.Storage.Path = "eo-trader.db"
	}
	if config.Storage.KeepSignalsHours == 0 {
		config.Storage.KeepSignalsHours = 12
	}
	if config.Storage.MaxCandlesInMemory == 0 {
		config.Storage.MaxCandlesInMemory = 500
	}

	// API defaults
	if config.API.Host == "" {
		config.API.Host = "0.0.0.0"
	}
	if config.API.Port == 0 {
		config.API.Port = 8080
	}

	// Logging defaults
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
}

// validate validates configuration. Invalid values are fatal, never
// silently replaced.
func validate(config types.Config) error {
	if len(config.Assets) == 0 {
		return fmt.Errorf("no assets configured")
	}

	if config.Feed.URL == "" {
		return fmt.Errorf("feed URL is required")
	}

	p := config.Pipeline
	if p.FineDuration <= 0 || p.MidDuration <= 0 || p.CoarseDuration <= 0 {
		return fmt.Errorf("timeframe durations must be positive")
	}
	if p.FineDuration >= p.MidDuration || p.MidDuration >= p.CoarseDuration {
		return fmt.Errorf("timeframe durations must be strictly increasing (fine < mid < coarse)")
	}
	// Mid and coarse candles are folded from closed fine candles, so the
	// buckets have to nest exactly.
	if p.MidDuration%p.FineDuration != 0 {
		return fmt.Errorf("mid_duration (%ds) must be a multiple of fine_duration (%ds)", p.MidDuration, p.FineDuration)
	}
	if p.CoarseDuration%p.FineDuration != 0 {
		return fmt.Errorf("coarse_duration (%ds) must be a multiple of fine_duration (%ds)", p.CoarseDuration, p.FineDuration)
	}

	if p.TrendConfirmationCount < 2 {
		return fmt.Errorf("trend_confirmation_count must be at least 2, got %d", p.TrendConfirmationCount)
	}
	if p.WickRatioThreshold <= 0 {
		return fmt.Errorf("wick_ratio_threshold must be positive, got %v", p.WickRatioThreshold)
	}
	if p.MinAbsoluteWick < 0 {
		return fmt.Errorf("min_absolute_wick must not be negative, got %v", p.MinAbsoluteWick)
	}
	if p.CooldownDuration <= 0 {
		return fmt.Errorf("cooldown_duration must be positive, got %d", p.CooldownDuration)
	}

	if config.API.Port < 1 || config.API.Port > 65535 {
		return fmt.Errorf("invalid API port %d", config.API.Port)
	}

	return nil
}
