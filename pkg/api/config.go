package api

import (
	"fmt"
	"math"
	"time"

	"gopkg.in/yaml.v3"
)

// BackoffStrategy selects how machine-level recovery delays grow.
type BackoffStrategy string

const (
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryPolicy controls task-level retries and machine-level recovery
// backoff. MaxRetries counts retries, not attempts: MaxRetries = 3 means
// one initial attempt plus up to three retries.
type RetryPolicy struct {
	MaxRetries int             `yaml:"maxRetries"`
	Backoff    BackoffStrategy `yaml:"backoffStrategy"`
	BaseDelay  time.Duration   `yaml:"baseDelay"`
}

// Delay returns the backoff delay before recovery attempt n (1-based):
// BaseDelay×n for linear, BaseDelay×2^(n−1) for exponential.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	switch p.Backoff {
	case BackoffExponential:
		return time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)))
	default:
		return p.BaseDelay * time.Duration(attempt)
	}
}

// Policy is the runtime policy block of a worker configuration.
type Policy struct {
	MaxConcurrentTasks int           `yaml:"maxConcurrentTasks"`
	TaskTimeout        time.Duration `yaml:"taskTimeout"`
	Retry              RetryPolicy   `yaml:"retryPolicy"`

	// ResourceLimits maps gauge names to alert thresholds. Limits are
	// compared against live gauges to emit resourceLimitExceeded; the
	// engine never throttles on them.
	ResourceLimits map[string]float64 `yaml:"resourceLimits,omitempty"`
}

// Config is the immutable construction-time configuration of a machine.
type Config struct {
	WorkerID     string       `yaml:"workerId"`
	Domain       string       `yaml:"domain"`
	Capabilities []Capability `yaml:"capabilities,omitempty"`
	Graph        StateGraph   `yaml:"stateGraph"`
	Policy       Policy       `yaml:"policy"`

	// HistorySize bounds the state history ring buffer. Zero means
	// DefaultHistorySize.
	HistorySize int `yaml:"historySize,omitempty"`
}

// Defaults applied by Normalize.
const (
	DefaultMaxConcurrentTasks = 4
	DefaultTaskTimeout        = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultBaseDelay          = 500 * time.Millisecond
	DefaultHistorySize        = 64
)

// Normalize returns a copy of c with defaults applied to zero-valued
// policy fields.
func (c Config) Normalize() Config {
	if c.Policy.MaxConcurrentTasks <= 0 {
		c.Policy.MaxConcurrentTasks = DefaultMaxConcurrentTasks
	}
	if c.Policy.TaskTimeout <= 0 {
		c.Policy.TaskTimeout = DefaultTaskTimeout
	}
	if c.Policy.Retry.MaxRetries <= 0 {
		c.Policy.Retry.MaxRetries = DefaultMaxRetries
	}
	if c.Policy.Retry.BaseDelay <= 0 {
		c.Policy.Retry.BaseDelay = DefaultBaseDelay
	}
	if c.Policy.Retry.Backoff == "" {
		c.Policy.Retry.Backoff = BackoffLinear
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	return c
}

// Validate checks the configuration, including the state graph.
func (c Config) Validate() error {
	if c.WorkerID == "" {
		return fmt.Errorf("config: workerId is required")
	}
	switch c.Policy.Retry.Backoff {
	case "", BackoffLinear, BackoffExponential:
	default:
		return fmt.Errorf("config: unknown backoff strategy %q", c.Policy.Retry.Backoff)
	}
	if err := c.Graph.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// UnmarshalYAML accepts Go duration syntax ("500ms") for baseDelay.
func (p *RetryPolicy) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		MaxRetries int             `yaml:"maxRetries"`
		Backoff    BackoffStrategy `yaml:"backoffStrategy"`
		BaseDelay  string          `yaml:"baseDelay"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	d, err := parseDuration(raw.BaseDelay)
	if err != nil {
		return fmt.Errorf("baseDelay: %w", err)
	}
	*p = RetryPolicy{MaxRetries: raw.MaxRetries, Backoff: raw.Backoff, BaseDelay: d}
	return nil
}

// UnmarshalYAML accepts Go duration syntax ("30s") for taskTimeout.
func (p *Policy) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		MaxConcurrentTasks int                `yaml:"maxConcurrentTasks"`
		TaskTimeout        string             `yaml:"taskTimeout"`
		Retry              RetryPolicy        `yaml:"retryPolicy"`
		ResourceLimits     map[string]float64 `yaml:"resourceLimits"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	d, err := parseDuration(raw.TaskTimeout)
	if err != nil {
		return fmt.Errorf("taskTimeout: %w", err)
	}
	*p = Policy{
		MaxConcurrentTasks: raw.MaxConcurrentTasks,
		TaskTimeout:        d,
		Retry:              raw.Retry,
		ResourceLimits:     raw.ResourceLimits,
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// LoadConfig parses a YAML document into a normalized, validated Config.
//
// Durations use Go syntax ("30s", "500ms"). Example:
//
//	workerId: resource-worker-1
//	domain: resource
//	policy:
//	  maxConcurrentTasks: 2
//	  taskTimeout: 30s
//	  retryPolicy:
//	    maxRetries: 3
//	    backoffStrategy: exponential
//	    baseDelay: 500ms
func LoadConfig(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
