package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConnectionString = "STORAGE_CONNECTION_STRING"
	EnvContainerName    = "BLOB_CONTAINER_NAME"
	EnvOutputDir        = "TRANSCRIPT_OUTPUT_DIR"
	EnvLivenessWindow   = "LIVENESS_WINDOW"
	EnvContinueOnError  = "CONTINUE_ON_ERROR"
	EnvRunTable         = "RUN_TABLE"
	EnvParamPrefix      = "PARAM_PREFIX"
)

// Parameter names below PARAM_PREFIX.
const (
	ParamConnectionString = "/storage_connection_string"
	ParamContainerName    = "/blob_container_name"
)

const (
	DefaultOutputDir      = "MyTranscripts"
	DefaultLivenessWindow = 5 * time.Minute
)

var bucketName = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// Config is the process configuration, resolved once at startup.
type Config struct {
	ConnectionString string
	ContainerName    string
	OutputDir        string
	LivenessWindow   time.Duration
	ContinueOnError  bool
	RunTable         string
	ParamPrefix      string
}

// fileConfig is the YAML shape of a config file.
type fileConfig struct {
	Storage struct {
		ConnectionString string `yaml:"connection_string"`
		ContainerName    string `yaml:"container_name"`
	} `yaml:"storage"`
	OutputDir       string `yaml:"output_dir"`
	LivenessWindow  string `yaml:"liveness_window"`
	ContinueOnError *bool  `yaml:"continue_on_error"`
	RunTable        string `yaml:"run_table"`
	ParamPrefix     string `yaml:"param_prefix"`
}

// ParamGetter reads parameters, e.g. from SSM Parameter Store.
type ParamGetter interface {
	GetParameters(ctx context.Context, names ...string) (map[string]string, error)
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		OutputDir:      DefaultOutputDir,
		LivenessWindow: DefaultLivenessWindow,
	}
}

// Load resolves defaults, then the YAML file at path (skipped when path is
// empty), then environment variables looked up with getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	setString(&c.ConnectionString, fc.Storage.ConnectionString)
	setString(&c.ContainerName, fc.Storage.ContainerName)
	setString(&c.OutputDir, fc.OutputDir)
	setString(&c.RunTable, fc.RunTable)
	setString(&c.ParamPrefix, fc.ParamPrefix)
	if fc.ContinueOnError != nil {
		c.ContinueOnError = *fc.ContinueOnError
	}
	if strings.TrimSpace(fc.LivenessWindow) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(fc.LivenessWindow))
		if err != nil {
			return fmt.Errorf("config: liveness_window: %w", err)
		}
		c.LivenessWindow = d
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString(&c.ConnectionString, getenv(EnvConnectionString))
	setString(&c.ContainerName, getenv(EnvContainerName))
	setString(&c.OutputDir, getenv(EnvOutputDir))
	setString(&c.RunTable, getenv(EnvRunTable))
	setString(&c.ParamPrefix, getenv(EnvParamPrefix))
	if v := strings.TrimSpace(getenv(EnvContinueOnError)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvContinueOnError, err)
		}
		c.ContinueOnError = b
	}
	if v := strings.TrimSpace(getenv(EnvLivenessWindow)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvLivenessWindow, err)
		}
		c.LivenessWindow = d
	}
	return nil
}

// ResolveParams fills the storage settings that are still empty from the
// parameter store under ParamPrefix. It is a no-op without a prefix.
func (c *Config) ResolveParams(ctx context.Context, params ParamGetter) error {
	prefix := strings.TrimRight(strings.TrimSpace(c.ParamPrefix), "/")
	if prefix == "" {
		return nil
	}
	if params == nil {
		return errors.New("config: param getter must not be nil")
	}
	targets := map[string]*string{}
	if c.ConnectionString == "" {
		targets[prefix+ParamConnectionString] = &c.ConnectionString
	}
	if c.ContainerName == "" {
		targets[prefix+ParamContainerName] = &c.ContainerName
	}
	if len(targets) == 0 {
		return nil
	}
	names := make([]string, 0, len(targets))
	for n := range targets {
		names = append(names, n)
	}
	sort.Strings(names)

	values, err := params.GetParameters(ctx, names...)
	if err != nil {
		return fmt.Errorf("config: load storage parameters: %w", err)
	}
	for n, dst := range targets {
		*dst = strings.TrimSpace(values[n])
	}
	return nil
}

// Validate checks the resolved configuration and returns the parsed
// connection string.
func (c Config) Validate() (Connection, error) {
	if c.ContainerName == "" {
		return Connection{}, errors.New("config: container name is required")
	}
	if !bucketName.MatchString(c.ContainerName) {
		return Connection{}, fmt.Errorf("config: invalid container name %q", c.ContainerName)
	}
	if c.LivenessWindow < 0 {
		return Connection{}, errors.New("config: liveness window must not be negative")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return Connection{}, errors.New("config: output dir must not be empty")
	}
	return ParseConnection(c.ConnectionString)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
