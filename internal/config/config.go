package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"gopkg.in/yaml.v3"
)

// Defaults for the target API
const (
	DefaultHost      = "http://localhost:8082"
	DefaultAPIPrefix = "/api/v1"
	DefaultAdminKey  = "verystrongpassword"
)

// Env holds the settings read from the environment
type Env struct {
	Host           string        `env:"HOST,default=http://localhost:8082"`
	APIPrefix      string        `env:"API_PREFIX,default=/api/v1"`
	AdminKey       string        `env:"ADMIN_KEY,default=verystrongpassword"`
	LogLevel       string        `env:"LOG_LEVEL,default=info"`
	LogFormat      string        `env:"LOG_FORMAT,default=console"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=10s"`
}

// LoadEnv reads Env from the process environment
func LoadEnv() (*Env, error) {
	var cfg Env
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the environment settings
func (e *Env) Validate() error {
	if e.Host == "" {
		return fmt.Errorf("HOST cannot be empty")
	}
	if e.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", e.RequestTimeout)
	}
	switch e.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s", e.LogFormat)
	}
	return nil
}

// Thresholds maps a metric to its expressions. Each metric accepts a
// single expression or a list.
type Thresholds map[string]ExpressionList

// ExpressionList is one or more threshold expressions
type ExpressionList []string

// UnmarshalYAML accepts both `checks: "rate == 1.00"` and a sequence
func (l *ExpressionList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = ExpressionList{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	default:
		return fmt.Errorf("line %d: threshold must be a string or a list of strings", node.Line)
	}
}

// Map returns the thresholds as plain strings
func (t Thresholds) Map() map[string][]string {
	if len(t) == 0 {
		return nil
	}
	out := make(map[string][]string, len(t))
	for metric, exprs := range t {
		out[metric] = []string(exprs)
	}
	return out
}

// Options are the run options of an options file
type Options struct {
	VUs        int           `yaml:"vus"`
	Iterations int           `yaml:"iterations"`
	Duration   time.Duration `yaml:"duration"`
	RPS        float64       `yaml:"rps"`
	Thresholds Thresholds    `yaml:"thresholds"`
}

// LoadOptions reads an options file. Unknown keys are rejected.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read options file: %w", err)
	}

	opts, err := ParseOptions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return opts, nil
}

// ParseOptions decodes and validates options from YAML
func ParseOptions(data []byte) (*Options, error) {
	var opts Options

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse options: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// Validate checks option ranges
func (o *Options) Validate() error {
	if o.VUs < 0 {
		return fmt.Errorf("vus cannot be negative")
	}
	if o.Iterations < 0 {
		return fmt.Errorf("iterations cannot be negative")
	}
	if o.Duration < 0 {
		return fmt.Errorf("duration cannot be negative")
	}
	if o.RPS < 0 {
		return fmt.Errorf("rps cannot be negative")
	}
	for metric, exprs := range o.Thresholds {
		if len(exprs) == 0 {
			return fmt.Errorf("threshold %s has no expression", metric)
		}
	}
	return nil
}

// Merge returns o with every non-zero field of override applied
func (o Options) Merge(override Options) Options {
	if override.VUs != 0 {
		o.VUs = override.VUs
	}
	if override.Iterations != 0 {
		o.Iterations = override.Iterations
	}
	if override.Duration != 0 {
		o.Duration = override.Duration
	}
	if override.RPS != 0 {
		o.RPS = override.RPS
	}
	if len(override.Thresholds) > 0 {
		o.Thresholds = override.Thresholds
	}
	return o
}
