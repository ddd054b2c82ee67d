package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/schema"
	"github.com/openfroyo/confeval/pkg/telemetry"
)

// DefaultConfigFile is read from the working directory when --config is
// not given.
const DefaultConfigFile = "confeval.yaml"

// EnvPrefix prefixes environment overrides: CONFEVAL_MAX_DEPTH -> max_depth.
const EnvPrefix = "CONFEVAL_"

// Config is the command configuration.
type Config struct {
	Output        string   `koanf:"output" validate:"oneof=yaml json"`
	CUE           []string `koanf:"cue"`
	CollectAll    bool     `koanf:"collect_all"`
	IncludeNone   bool     `koanf:"include_none"`
	MaxDepth      int      `koanf:"max_depth" validate:"gte=0"`
	MaxSteps      uint64   `koanf:"max_steps"`
	Policy        []string `koanf:"policy"`
	PolicyData    string   `koanf:"policy_data"`
	Builtins      bool     `koanf:"builtin_policies"`
	History       string   `koanf:"history"`
	Watch         bool     `koanf:"watch"`
	MetricsAddr   string   `koanf:"metrics_addr"`
	Trace         string   `koanf:"trace" validate:"oneof=none stdout otlp"`
	TraceEndpoint string   `koanf:"trace_endpoint" validate:"required_if=Trace otlp"`
	LogLevel      string   `koanf:"log_level" validate:"oneof=trace debug info warn error disabled"`
	Verbose       bool     `koanf:"verbose"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

var configValidator = validator.New()

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"output":           "yaml",
		"cue":              []string{},
		"collect_all":      false,
		"include_none":     false,
		"max_depth":        schema.DefaultMaxDepth,
		"max_steps":        0,
		"policy":           []string{},
		"policy_data":      "",
		"builtin_policies": false,
		"history":          "",
		"watch":            false,
		"metrics_addr":     "",
		"trace":            "none",
		"trace_endpoint":   "localhost:4317",
		"log_level":        "warn",
		"verbose":          false,
	}
}

// LoadConfig loads configuration from defaults, the config file, the
// environment and flags, in increasing precedence.
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	cfgFile := ""
	if flags != nil {
		cfgFile, _ = flags.GetString("config")
	}
	explicit := cfgFile != ""
	if !explicit {
		cfgFile = DefaultConfigFile
	}
	if _, err := os.Stat(cfgFile); err == nil {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s: %w", cfgFile, err)
	} else {
		cfgFile = ""
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = cfgFile
	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}

	if err := configValidator.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Options returns the evaluation options.
func (c *Config) Options(tel *telemetry.Telemetry) schema.Options {
	mode := diag.FailFast
	if c.CollectAll {
		mode = diag.CollectAll
	}
	return schema.Options{
		Mode:        mode,
		MaxDepth:    c.MaxDepth,
		MaxSteps:    c.MaxSteps,
		IncludeNone: c.IncludeNone,
		Telemetry:   tel,
	}
}

// TelemetryConfig returns the telemetry configuration.
func (c *Config) TelemetryConfig(version string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.Logging.Level = c.LogLevel

	if c.Trace != "none" {
		tc.Tracing.Enabled = true
		tc.Tracing.Exporter = c.Trace
		tc.Tracing.Endpoint = c.TraceEndpoint
	}
	if c.MetricsAddr != "" {
		tc.Metrics.Enabled = true
		tc.Metrics.ListenAddress = c.MetricsAddr
	}
	return tc
}
