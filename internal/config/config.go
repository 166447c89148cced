package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/nca-cli/internal/utils"
)

// Global configuration structure.
type Global struct {
	// Analysis defaults
	DefaultStats  []string  `mapstructure:"default_stats" yaml:"default_stats"`
	AUCStart      float64   `mapstructure:"auc_start" yaml:"auc_start"`
	AUCEnd        *float64  `mapstructure:"auc_end" yaml:"auc_end,omitempty"` // nil: last observed time
	TerminalTimes []float64 `mapstructure:"terminal_times" yaml:"terminal_times"`
	Strict        bool      `mapstructure:"strict" yaml:"strict"`
	Workers       int       `mapstructure:"workers" yaml:"workers"`
	ReportFormat  string    `mapstructure:"report_format" yaml:"report_format"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	StudiesDir string `mapstructure:"studies_dir" yaml:"studies_dir"`

	// Generator defaults; zero values (nil dose) mean "ask"
	GenerateSubjects int       `mapstructure:"generate_subjects" yaml:"generate_subjects"`
	GenerateTimes    []float64 `mapstructure:"generate_times" yaml:"generate_times"`
	GenerateDose     *float64  `mapstructure:"generate_dose" yaml:"generate_dose,omitempty"`
	GenerateHalfLife float64   `mapstructure:"generate_half_life" yaml:"generate_half_life"`
	GenerateSeed     uint64    `mapstructure:"generate_seed" yaml:"generate_seed"`

	// HTTP API
	ServeAddr            string `mapstructure:"serve_addr" yaml:"serve_addr"`
	ServeBodyLimitMB     int    `mapstructure:"serve_body_limit_mb" yaml:"serve_body_limit_mb"`
	ServeMaxGenerateRows int    `mapstructure:"serve_max_generate_rows" yaml:"serve_max_generate_rows"`

	// MetricsFile, when set, receives a Prometheus textfile after each CLI run.
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file"`
}

// Keys lists the settable configuration keys in display order.
var Keys = []string{
	"default_stats", "auc_start", "auc_end", "terminal_times", "strict", "workers", "report_format",
	"log_level", "log_format", "studies_dir",
	"generate_subjects", "generate_times", "generate_dose", "generate_half_life", "generate_seed",
	"serve_addr", "serve_body_limit_mb", "serve_max_generate_rows", "metrics_file",
}

// Dir returns the default configuration directory (~/.nca).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".nca"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.nca/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env (NCA_*) > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("NCA")
	v.AutomaticEnv()

	v.SetDefault("default_stats", []string{})
	v.SetDefault("auc_start", 0.0)
	v.SetDefault("terminal_times", []float64{})
	v.SetDefault("strict", false)
	v.SetDefault("workers", 0)
	v.SetDefault("report_format", "text")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("studies_dir", "")
	v.SetDefault("generate_subjects", 0)
	v.SetDefault("generate_times", []float64{})
	v.SetDefault("generate_half_life", 0.0)
	v.SetDefault("generate_seed", 0)
	v.SetDefault("serve_addr", ":8080")
	v.SetDefault("serve_body_limit_mb", 10)
	v.SetDefault("serve_max_generate_rows", 0)
	// no defaults: an absent key must stay nil, distinct from an explicit 0
	_ = v.BindEnv("auc_end")
	_ = v.BindEnv("generate_dose")
	v.SetDefault("metrics_file", "")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.StudiesDir == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		c.StudiesDir = filepath.Join(dir, "studies")
	} else {
		dir, err := utils.ExpandHome(c.StudiesDir)
		if err != nil {
			return nil, err
		}
		c.StudiesDir = dir
	}
	return &c, nil
}

// Set parses val for key and stores it on c.
func (c *Global) Set(key, val string) error {
	var err error
	switch key {
	case "default_stats":
		c.DefaultStats = SplitList(val)
	case "auc_start":
		c.AUCStart, err = strconv.ParseFloat(val, 64)
	case "auc_end":
		c.AUCEnd, err = parseOptionalFloat(val)
	case "terminal_times":
		c.TerminalTimes, err = ParseFloats(val)
	case "strict":
		c.Strict, err = strconv.ParseBool(val)
	case "workers":
		c.Workers, err = strconv.Atoi(val)
	case "report_format":
		c.ReportFormat = val
	case "log_level":
		c.LogLevel = val
	case "log_format":
		if val != "console" && val != "json" {
			return fmt.Errorf("invalid log_format: %s (use console or json)", val)
		}
		c.LogFormat = val
	case "studies_dir":
		c.StudiesDir = val
	case "generate_subjects":
		c.GenerateSubjects, err = strconv.Atoi(val)
	case "generate_times":
		c.GenerateTimes, err = ParseFloats(val)
	case "generate_dose":
		c.GenerateDose, err = parseOptionalFloat(val)
	case "generate_half_life":
		c.GenerateHalfLife, err = strconv.ParseFloat(val, 64)
	case "generate_seed":
		c.GenerateSeed, err = strconv.ParseUint(val, 10, 64)
	case "serve_addr":
		c.ServeAddr = val
	case "serve_body_limit_mb":
		c.ServeBodyLimitMB, err = strconv.Atoi(val)
	case "serve_max_generate_rows":
		c.ServeMaxGenerateRows, err = strconv.Atoi(val)
	case "metrics_file":
		c.MetricsFile = val
	default:
		return fmt.Errorf("unknown key: %s (valid keys: %s)", key, strings.Join(Keys, ", "))
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

// parseOptionalFloat parses val, with an empty string clearing the value.
func parseOptionalFloat(val string) (*float64, error) {
	if strings.TrimSpace(val) == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// SplitList splits a comma- or space-separated list, dropping empty items.
func SplitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
}

// ParseFloats parses a comma- or space-separated list of numbers.
func ParseFloats(s string) ([]float64, error) {
	parts := SplitList(s)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", p, err)
		}
		out = append(out, f)
	}
	return out, nil
}
