// Package config loads and validates the server's typed configuration.
//
// Precedence, lowest to highest: built-in defaults, an optional YAML file,
// environment variables, explicit CLI flags. The loaded Config can be
// hot-reloaded for a small set of scheduler/post-processor tunables via
// Watcher.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the streaming recognition server.
type Config struct {
	Port        int    `yaml:"port"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`

	Whisper WhisperConfig `yaml:"whisper"`
	Tuning  TuningConfig  `yaml:"tuning"`
}

// WhisperConfig configures the concrete Decoder Adapter.
type WhisperConfig struct {
	BinPath   string `yaml:"bin_path"`
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
	Workers   int    `yaml:"workers"`
}

// TuningConfig holds the Recognition Scheduler / Token Post-Processor
// constants. All of these are safe to change at runtime: Watcher reloads them
// without disrupting open sessions.
type TuningConfig struct {
	SampleRate          int `yaml:"sample_rate"`
	MaxBufferSeconds     int `yaml:"max_buffer_seconds"`
	MinDecodeSeconds     int `yaml:"min_decode_seconds"`
	StallTicks           int `yaml:"stall_ticks"`
	TickMillis           int `yaml:"tick_millis"`
	TerminatorLookahead  int `yaml:"terminator_lookahead"`
	MaxFrameBytes        int `yaml:"max_frame_bytes"`
}

// Default returns the baseline configuration matching spec.md's stated
// defaults.
func Default() Config {
	return Config{
		Port:        3000,
		MetricsAddr: ":9091",
		LogLevel:    "info",
		Whisper: WhisperConfig{
			Language: "zh",
			Workers:  defaultWorkers(),
		},
		Tuning: TuningConfig{
			SampleRate:          16000,
			MaxBufferSeconds:     20,
			MinDecodeSeconds:     1,
			StallTicks:           100,
			TickMillis:           10,
			TerminatorLookahead:  10,
			MaxFrameBytes:        1 << 20,
		},
	}
}

// defaultWorkers returns min(4, GOMAXPROCS), the decoder worker pool size
// when neither config file nor CLI flag sets one explicitly.
func defaultWorkers() int {
	if procs := runtime.GOMAXPROCS(0); procs < 4 {
		return procs
	}
	return 4
}

// MaxBufferSamples is MaxBufferSeconds expressed in samples at SampleRate.
func (t TuningConfig) MaxBufferSamples() int {
	return t.MaxBufferSeconds * t.SampleRate
}

// MinDecodeSamples is MinDecodeSeconds expressed in samples at SampleRate.
func (t TuningConfig) MinDecodeSamples() int {
	return t.MinDecodeSeconds * t.SampleRate
}

// Load builds a Config from defaults, an optional YAML file at path, and
// environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideInt(&cfg.Port, "AUTOTALK_PORT")
	overrideString(&cfg.MetricsAddr, "AUTOTALK_METRICS_ADDR")
	overrideString(&cfg.LogLevel, "AUTOTALK_LOG_LEVEL")
	overrideString(&cfg.Whisper.BinPath, "AUTOTALK_WHISPER_BIN")
	overrideString(&cfg.Whisper.ModelPath, "AUTOTALK_WHISPER_MODEL")
	overrideString(&cfg.Whisper.Language, "AUTOTALK_WHISPER_LANGUAGE")
	overrideInt(&cfg.Whisper.Workers, "AUTOTALK_WORKERS")
	overrideInt(&cfg.Tuning.MaxBufferSeconds, "AUTOTALK_MAX_BUFFER_SECONDS")
	overrideInt(&cfg.Tuning.StallTicks, "AUTOTALK_STALL_TICKS")
	overrideInt(&cfg.Tuning.TerminatorLookahead, "AUTOTALK_TERMINATOR_LOOKAHEAD")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

// Validate rejects configurations the rest of the system cannot safely run
// with.
func Validate(cfg Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if cfg.Whisper.Workers <= 0 {
		return errors.New("whisper.workers must be >= 1")
	}
	if cfg.Tuning.SampleRate <= 0 {
		return errors.New("tuning.sample_rate must be positive")
	}
	if cfg.Tuning.MaxBufferSeconds <= 0 {
		return errors.New("tuning.max_buffer_seconds must be positive")
	}
	if cfg.Tuning.MinDecodeSeconds <= 0 {
		return errors.New("tuning.min_decode_seconds must be positive")
	}
	if cfg.Tuning.StallTicks <= 0 {
		return errors.New("tuning.stall_ticks must be positive")
	}
	if cfg.Tuning.TickMillis <= 0 {
		return errors.New("tuning.tick_millis must be positive")
	}
	if cfg.Tuning.TerminatorLookahead < 0 {
		return errors.New("tuning.terminator_lookahead must be >= 0")
	}
	if cfg.Tuning.MaxFrameBytes <= 0 {
		return errors.New("tuning.max_frame_bytes must be positive")
	}
	return nil
}
