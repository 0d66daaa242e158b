package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"visionctl/internal/protocol"
)

const (
	AppName = "visionctl"

	DefaultTimeout      = "30s"
	DefaultPollInterval = "2s"
	DefaultMaxUpload    = "10 MiB"
	DefaultCacheTTL     = "1m"
	DefaultOutput       = OutputTable
)

// Output formats for list commands.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// FieldSource indicates where a config value originates.
type FieldSource string

const (
	SourceDefault     FieldSource = "default"
	SourceConfigFile  FieldSource = "config.toml"
	SourceDotEnv      FieldSource = ".env"
	SourceDotEnvLocal FieldSource = ".env.local"
	SourceEnv         FieldSource = "env"
	SourceFlag        FieldSource = "flag"
)

// FieldInfo describes a single configurable field and its provenance.
type FieldInfo struct {
	Key    string      `json:"key" yaml:"key"`
	Value  string      `json:"value" yaml:"value"`
	Source FieldSource `json:"source" yaml:"source"`
}

type Config struct {
	API      APIConfig      `toml:"api"`
	Training TrainingConfig `toml:"training"`
	Upload   UploadConfig   `toml:"upload"`
	Cache    CacheConfig    `toml:"cache"`
	Metrics  MetricsConfig  `toml:"metrics"`
	User     string         `toml:"user"`
	Verbose  bool           `toml:"verbose"`
	Output   string         `toml:"output"`
}

type APIConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

type TrainingConfig struct {
	PollInterval string `toml:"poll_interval"`
}

type UploadConfig struct {
	MaxBytes string `toml:"max_bytes"`
}

type CacheConfig struct {
	TTL string `toml:"ttl"`
}

type MetricsConfig struct {
	Listen string `toml:"listen"`
}

func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL: protocol.DefaultBaseURL,
			Timeout: DefaultTimeout,
		},
		Training: TrainingConfig{PollInterval: DefaultPollInterval},
		Upload:   UploadConfig{MaxBytes: DefaultMaxUpload},
		Cache:    CacheConfig{TTL: DefaultCacheTTL},
		Output:   DefaultOutput,
	}
}

// Load merges defaults, config.toml, .env/.env.local and VISIONCTL_* env
// vars, in increasing precedence, and validates the result.
func Load() (Config, error) {
	if err := loadDotEnvPrecedence(); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := mergeUserConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("reading config.toml: %w", err)
	}
	mergeEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile returns the defaults merged with config.toml only, the view
// that Save writes back.
func LoadFile() (Config, error) {
	cfg := Default()
	if err := mergeUserConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("reading config.toml: %w", err)
	}
	return cfg, nil
}

// Validate checks every field.
func (c Config) Validate() error {
	var errs []error
	for _, fd := range fieldDefs {
		if err := ValidateField(fd.Key, fieldValueFromConfig(c, fd.Key)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RequestTimeout is the per-request HTTP timeout.
func (c Config) RequestTimeout() time.Duration {
	return durationOr(c.API.Timeout, protocol.DefaultRequestTimeout)
}

func (c Config) PollInterval() time.Duration {
	return durationOr(c.Training.PollInterval, protocol.DefaultPollInterval)
}

// ImageCacheTTL is zero when caching is disabled.
func (c Config) ImageCacheTTL() time.Duration {
	if strings.TrimSpace(c.Cache.TTL) == "0" {
		return 0
	}
	return durationOr(c.Cache.TTL, protocol.DefaultImageCacheTTL)
}

func (c Config) MaxUploadBytes() int64 {
	n, err := humanize.ParseBytes(strings.TrimSpace(c.Upload.MaxBytes))
	if err != nil || n == 0 {
		return protocol.DefaultMaxUploadBytes
	}
	return int64(n)
}

func durationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// StateDir is the per-user directory holding config.toml and history.db.
func StateDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, AppName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// ConfigPath returns the path to the user's config.toml file.
func ConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppName, "config.toml"), nil
}

func loadDotEnvPrecedence() error {
	// .env.local is read first so its values win over .env.
	for _, name := range []string{".env.local", ".env"} {
		values, err := godotenv.Read(name)
		if err != nil {
			continue
		}
		for k, v := range values {
			if _, exists := os.LookupEnv(k); !exists {
				if setErr := os.Setenv(k, v); setErr != nil {
					return setErr
				}
			}
		}
	}
	return nil
}

func mergeUserConfig(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	_, err = toml.DecodeFile(path, cfg)
	return err
}

func mergeEnv(cfg *Config) {
	for _, fd := range fieldDefs {
		if v := strings.TrimSpace(os.Getenv(fd.EnvVar)); v != "" {
			ApplyField(cfg, fd.Key, v)
		}
	}
}

// Save writes the config to ~/.config/visionctl/config.toml.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// fieldDef describes a configurable field for EffectiveFields.
type fieldDef struct {
	Key    string
	EnvVar string
}

var fieldDefs = []fieldDef{
	{Key: "api.base_url", EnvVar: "VISIONCTL_API_BASE_URL"},
	{Key: "api.timeout", EnvVar: "VISIONCTL_API_TIMEOUT"},
	{Key: "training.poll_interval", EnvVar: "VISIONCTL_POLL_INTERVAL"},
	{Key: "upload.max_bytes", EnvVar: "VISIONCTL_UPLOAD_MAX_BYTES"},
	{Key: "cache.ttl", EnvVar: "VISIONCTL_CACHE_TTL"},
	{Key: "user", EnvVar: "VISIONCTL_USER"},
	{Key: "verbose", EnvVar: "VISIONCTL_VERBOSE"},
	{Key: "output", EnvVar: "VISIONCTL_OUTPUT"},
	{Key: "metrics.listen", EnvVar: "VISIONCTL_METRICS_LISTEN"},
}

// Keys lists the configurable keys in display order.
func Keys() []string {
	out := make([]string, 0, len(fieldDefs))
	for _, fd := range fieldDefs {
		out = append(out, fd.Key)
	}
	return out
}

// EnvVarForField returns the environment variable mapped to a field key.
func EnvVarForField(key string) string {
	for _, fd := range fieldDefs {
		if fd.Key == key {
			return fd.EnvVar
		}
	}
	return ""
}

func fieldValueFromConfig(cfg Config, key string) string {
	switch key {
	case "api.base_url":
		return cfg.API.BaseURL
	case "api.timeout":
		return cfg.API.Timeout
	case "training.poll_interval":
		return cfg.Training.PollInterval
	case "upload.max_bytes":
		return cfg.Upload.MaxBytes
	case "cache.ttl":
		return cfg.Cache.TTL
	case "user":
		return cfg.User
	case "verbose":
		return strconv.FormatBool(cfg.Verbose)
	case "output":
		return cfg.Output
	case "metrics.listen":
		return cfg.Metrics.Listen
	default:
		return ""
	}
}

func readDotFile(name string) map[string]string {
	vals, err := godotenv.Read(name)
	if err != nil {
		return nil
	}
	return vals
}

// EffectiveFields returns each configurable field with the source of its
// current value, checked in precedence order:
// env var → .env.local → .env → config.toml → default.
func EffectiveFields(cfg Config) []FieldInfo {
	dotEnvLocal := readDotFile(".env.local")
	dotEnv := readDotFile(".env")

	def := Default()
	fileCfg := def
	if err := mergeUserConfig(&fileCfg); err != nil {
		// A malformed file still lets config show report env and defaults.
		fileCfg = def
	}
	result := make([]FieldInfo, 0, len(fieldDefs))

	for _, fd := range fieldDefs {
		fi := FieldInfo{Key: fd.Key}

		if v, ok := os.LookupEnv(fd.EnvVar); ok && strings.TrimSpace(v) != "" {
			fi.Value = strings.TrimSpace(v)
			if _, inLocal := dotEnvLocal[fd.EnvVar]; inLocal {
				fi.Source = SourceDotEnvLocal
			} else if _, inDot := dotEnv[fd.EnvVar]; inDot {
				fi.Source = SourceDotEnv
			} else {
				fi.Source = SourceEnv
			}
			result = append(result, fi)
			continue
		}

		fileVal := fieldValueFromConfig(fileCfg, fd.Key)
		if fileVal != fieldValueFromConfig(def, fd.Key) {
			fi.Value = fileVal
			fi.Source = SourceConfigFile
			result = append(result, fi)
			continue
		}

		fi.Value = fieldValueFromConfig(cfg, fd.Key)
		fi.Source = SourceDefault
		result = append(result, fi)
	}
	return result
}

// MarkFlags attributes keys set on the command line to SourceFlag, with
// their value taken from cfg.
func MarkFlags(fields []FieldInfo, cfg Config, keys ...string) []FieldInfo {
	for i := range fields {
		for _, key := range keys {
			if fields[i].Key == key {
				fields[i].Value = fieldValueFromConfig(cfg, key)
				fields[i].Source = SourceFlag
			}
		}
	}
	return fields
}

// ValidateField checks whether value is valid for the given field key.
func ValidateField(key, value string) error {
	switch key {
	case "api.base_url":
		v := strings.TrimSpace(value)
		if v == "" {
			return errors.New("api.base_url must not be empty")
		}
		if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
			return errors.New("api.base_url must start with \"http://\" or \"https://\"")
		}
	case "api.timeout", "training.poll_interval":
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s must be a duration such as \"2s\": %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", key, value)
		}
	case "cache.ttl":
		if strings.TrimSpace(value) == "0" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("cache.ttl must be a duration such as \"1m\" or 0 to disable: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("cache.ttl must not be negative, got %q", value)
		}
	case "upload.max_bytes":
		n, err := humanize.ParseBytes(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("upload.max_bytes must be a size such as %q: %w", DefaultMaxUpload, err)
		}
		if n == 0 {
			return errors.New("upload.max_bytes must be greater than zero")
		}
	case "verbose":
		if value != "true" && value != "false" && value != "1" && value != "0" {
			return fmt.Errorf("verbose must be \"true\" or \"false\", got %q", value)
		}
	case "output":
		switch value {
		case OutputTable, OutputJSON, OutputYAML:
		default:
			return fmt.Errorf("output must be %q, %q or %q, got %q", OutputTable, OutputJSON, OutputYAML, value)
		}
	case "metrics.listen":
		if strings.TrimSpace(value) == "" {
			return nil
		}
		_, port, err := net.SplitHostPort(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("metrics.listen must be host:port (e.g. %q): %w", "127.0.0.1:9464", err)
		}
		portNumber, err := strconv.Atoi(port)
		if err != nil || portNumber < 0 || portNumber > 65535 {
			return fmt.Errorf("metrics.listen port out of range in %q", value)
		}
	case "user":
		if value != "" && strings.TrimSpace(value) == "" {
			return errors.New("user must not be whitespace-only")
		}
	default:
		if EnvVarForField(key) == "" {
			return fmt.Errorf("unknown config key %q", key)
		}
	}
	return nil
}

// ApplyField sets a field on the config struct by key name.
func ApplyField(cfg *Config, key, value string) {
	switch key {
	case "api.base_url":
		cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
	case "api.timeout":
		cfg.API.Timeout = value
	case "training.poll_interval":
		cfg.Training.PollInterval = value
	case "upload.max_bytes":
		cfg.Upload.MaxBytes = value
	case "cache.ttl":
		cfg.Cache.TTL = value
	case "user":
		cfg.User = strings.TrimSpace(value)
	case "verbose":
		cfg.Verbose = strings.EqualFold(value, "true") || value == "1"
	case "output":
		cfg.Output = value
	case "metrics.listen":
		cfg.Metrics.Listen = value
	}
}

// DefaultValueForField returns the default value for a field key.
func DefaultValueForField(key string) string {
	return fieldValueFromConfig(Default(), key)
}
