// Package config defines the wavevoc configuration tree and its loading
// order: built-in defaults, then an optional config file, then environment
// variables, then command-line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig   `mapstructure:"paths"`
	Decode   DecodeConfig  `mapstructure:"decode"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	LogLevel string        `mapstructure:"log_level"`
}

type PathsConfig struct {
	CheckpointPath string `mapstructure:"checkpoint_path"`
	StatsPath      string `mapstructure:"stats_path"`
	FeaturePath    string `mapstructure:"feature_path"`
	OutDir         string `mapstructure:"out_dir"`
}

type DecodeConfig struct {
	SampleRate     int     `mapstructure:"sample_rate"`
	Seed           int64   `mapstructure:"seed"`
	Workers        int     `mapstructure:"workers"`
	Temperature    float64 `mapstructure:"temperature"`
	UseSpeakerCode bool    `mapstructure:"use_speaker_code"`
	PeakNormalize  bool    `mapstructure:"peak_normalize"`
	DCBlock        bool    `mapstructure:"dc_block"`
	FadeMs         float64 `mapstructure:"fade_ms"`
}

type RuntimeConfig struct {
	ConvWorkers int `mapstructure:"conv_workers"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			CheckpointPath: "models/checkpoint.safetensors",
			StatsPath:      "models/stats.safetensors",
			FeaturePath:    "feats",
			OutDir:         "wav",
		},
		Decode: DecodeConfig{
			SampleRate:     16000,
			Seed:           1,
			Workers:        1,
			Temperature:    1,
			UseSpeakerCode: false,
			PeakNormalize:  false,
			DCBlock:        false,
			FadeMs:         0,
		},
		Runtime: RuntimeConfig{
			ConvWorkers: 0,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-checkpoint-path", defaults.Paths.CheckpointPath, "Path to model checkpoint")
	fs.String("checkpoint", defaults.Paths.CheckpointPath, "Path to model checkpoint (alias for --paths-checkpoint-path)")
	fs.String("paths-stats-path", defaults.Paths.StatsPath, "Path to feature statistics file")
	fs.String("stats", defaults.Paths.StatsPath, "Path to feature statistics file (alias for --paths-stats-path)")
	fs.String("paths-feature-path", defaults.Paths.FeaturePath, "Feature directory or newline-separated list file")
	fs.String("feats", defaults.Paths.FeaturePath, "Feature directory or list file (alias for --paths-feature-path)")
	fs.String("paths-out-dir", defaults.Paths.OutDir, "Output directory for WAV files")
	fs.String("outdir", defaults.Paths.OutDir, "Output directory (alias for --paths-out-dir)")
	fs.Int("decode-sample-rate", defaults.Decode.SampleRate, "Output sample rate in Hz")
	fs.Int("fs", defaults.Decode.SampleRate, "Output sample rate in Hz (alias for --decode-sample-rate)")
	fs.Int64("decode-seed", defaults.Decode.Seed, "Base random seed; each utterance derives its own stream")
	fs.Int("decode-workers", defaults.Decode.Workers, "Max utterances decoded concurrently")
	fs.Float64("decode-temperature", defaults.Decode.Temperature, "Sampling temperature")
	fs.Bool("use-speaker-code", defaults.Decode.UseSpeakerCode, "Append tiled speaker code to features")
	fs.Bool("decode-peak-normalize", defaults.Decode.PeakNormalize, "Peak-normalize output before encoding")
	fs.Bool("decode-dc-block", defaults.Decode.DCBlock, "High-pass the output to remove DC offset")
	fs.Float64("decode-fade-ms", defaults.Decode.FadeMs, "Fade in/out duration in milliseconds (0 = disabled)")
	fs.Int("runtime-conv-workers", defaults.Runtime.ConvWorkers, "Convolution worker count (0 = GOMAXPROCS)")
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("WAVEVOC")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("wavevoc")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects values the decode pipeline cannot run with.
func Validate(cfg Config) error {
	switch {
	case cfg.Decode.SampleRate < 1:
		return fmt.Errorf("config: sample rate must be positive, got %d", cfg.Decode.SampleRate)
	case cfg.Decode.Workers < 1:
		return fmt.Errorf("config: decode workers must be at least 1, got %d", cfg.Decode.Workers)
	case cfg.Decode.Temperature < 0:
		return fmt.Errorf("config: temperature must not be negative, got %v", cfg.Decode.Temperature)
	case cfg.Decode.FadeMs < 0:
		return fmt.Errorf("config: fade must not be negative, got %v", cfg.Decode.FadeMs)
	case cfg.Runtime.ConvWorkers < 0:
		return fmt.Errorf("config: conv workers must not be negative, got %d", cfg.Runtime.ConvWorkers)
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.checkpoint_path", c.Paths.CheckpointPath)
	v.SetDefault("paths.stats_path", c.Paths.StatsPath)
	v.SetDefault("paths.feature_path", c.Paths.FeaturePath)
	v.SetDefault("paths.out_dir", c.Paths.OutDir)
	v.SetDefault("decode.sample_rate", c.Decode.SampleRate)
	v.SetDefault("decode.seed", c.Decode.Seed)
	v.SetDefault("decode.workers", c.Decode.Workers)
	v.SetDefault("decode.temperature", c.Decode.Temperature)
	v.SetDefault("decode.use_speaker_code", c.Decode.UseSpeakerCode)
	v.SetDefault("decode.peak_normalize", c.Decode.PeakNormalize)
	v.SetDefault("decode.dc_block", c.Decode.DCBlock)
	v.SetDefault("decode.fade_ms", c.Decode.FadeMs)
	v.SetDefault("runtime.conv_workers", c.Runtime.ConvWorkers)
	v.SetDefault("log_level", c.LogLevel)
}

// flagBindings maps each dotted config key to its long flag and optional
// short alias. A viper key resolves through at most one name, so BindPFlags
// plus RegisterAlias cannot serve two flags per key; each key is bound to
// its long flag explicitly, and a short flag the user set rebinds the key so
// the short value wins.
var flagBindings = []struct {
	key   string
	flag  string
	alias string
}{
	{"paths.checkpoint_path", "paths-checkpoint-path", "checkpoint"},
	{"paths.stats_path", "paths-stats-path", "stats"},
	{"paths.feature_path", "paths-feature-path", "feats"},
	{"paths.out_dir", "paths-out-dir", "outdir"},
	{"decode.sample_rate", "decode-sample-rate", "fs"},
	{"decode.seed", "decode-seed", ""},
	{"decode.workers", "decode-workers", ""},
	{"decode.temperature", "decode-temperature", ""},
	{"decode.use_speaker_code", "use-speaker-code", ""},
	{"decode.peak_normalize", "decode-peak-normalize", ""},
	{"decode.dc_block", "decode-dc-block", ""},
	{"decode.fade_ms", "decode-fade-ms", ""},
	{"runtime.conv_workers", "runtime-conv-workers", ""},
	{"log_level", "log-level", ""},
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, b := range flagBindings {
		flag := fs.Lookup(b.flag)
		if flag == nil {
			return fmt.Errorf("bind flags: --%s is not registered", b.flag)
		}

		if err := v.BindPFlag(b.key, flag); err != nil {
			return fmt.Errorf("bind flags: --%s: %w", b.flag, err)
		}

		if b.alias == "" {
			continue
		}

		alias := fs.Lookup(b.alias)
		if alias == nil {
			return fmt.Errorf("bind flags: --%s is not registered", b.alias)
		}

		if alias.Changed {
			if err := v.BindPFlag(b.key, alias); err != nil {
				return fmt.Errorf("bind flags: --%s: %w", b.alias, err)
			}
		}
	}

	return nil
}
