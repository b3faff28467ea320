package api

import (
	"testing"
	"time"
)

func TestRetryPolicyDelay(t *testing.T) {
	linear := RetryPolicy{MaxRetries: 3, Backoff: BackoffLinear, BaseDelay: 100 * time.Millisecond}
	for attempt, want := range map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 300 * time.Millisecond,
	} {
		if got := linear.Delay(attempt); got != want {
			t.Fatalf("linear Delay(%d) = %v, want %v", attempt, got, want)
		}
	}

	exp := RetryPolicy{MaxRetries: 3, Backoff: BackoffExponential, BaseDelay: 100 * time.Millisecond}
	for attempt, want := range map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
	} {
		if got := exp.Delay(attempt); got != want {
			t.Fatalf("exponential Delay(%d) = %v, want %v", attempt, got, want)
		}
	}

	if got := linear.Delay(0); got != 0 {
		t.Fatalf("Delay(0) = %v, want 0", got)
	}
	zero := RetryPolicy{MaxRetries: 3}
	if got := zero.Delay(2); got != 0 {
		t.Fatalf("zero base delay must yield 0, got %v", got)
	}
}

func TestConfigNormalizeDefaults(t *testing.T) {
	c := Config{WorkerID: "w1", Graph: validGraph()}.Normalize()

	if c.Policy.MaxConcurrentTasks != DefaultMaxConcurrentTasks {
		t.Fatalf("maxConcurrentTasks = %d, want %d", c.Policy.MaxConcurrentTasks, DefaultMaxConcurrentTasks)
	}
	if c.Policy.TaskTimeout != DefaultTaskTimeout {
		t.Fatalf("taskTimeout = %v, want %v", c.Policy.TaskTimeout, DefaultTaskTimeout)
	}
	if c.Policy.Retry.MaxRetries != DefaultMaxRetries {
		t.Fatalf("maxRetries = %d, want %d", c.Policy.Retry.MaxRetries, DefaultMaxRetries)
	}
	if c.Policy.Retry.Backoff != BackoffLinear {
		t.Fatalf("backoff = %q, want linear", c.Policy.Retry.Backoff)
	}
	if c.HistorySize != DefaultHistorySize {
		t.Fatalf("historySize = %d, want %d", c.HistorySize, DefaultHistorySize)
	}
}

func TestConfigValidate(t *testing.T) {
	c := Config{WorkerID: "", Graph: validGraph()}.Normalize()
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing worker id")
	}

	c = Config{WorkerID: "w1", Graph: validGraph()}
	c.Policy.Retry.Backoff = "fibonacci"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for unknown backoff strategy")
	}

	c = Config{WorkerID: "w1"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for empty graph")
	}
}

func TestLoadConfigYAML(t *testing.T) {
	data := []byte(`
workerId: resource-worker-1
domain: resource
capabilities:
  - id: cap-provision
    name: resource-provisioning
    type: core
    version: 1.0.0
    enabled: true
stateGraph:
  states:
    - name: idle
      type: idle
    - name: working
      type: busy
      timeout: 5m
    - name: failed
      type: error
  transitions:
    - from: idle
      to: working
      trigger: startTask
    - from: working
      to: idle
      trigger: completeTask
    - from: "*"
      to: failed
      trigger: errorDetected
  initial: idle
policy:
  maxConcurrentTasks: 2
  taskTimeout: 45s
  retryPolicy:
    maxRetries: 5
    backoffStrategy: exponential
    baseDelay: 250ms
  resourceLimits:
    cpu: 90
historySize: 16
`)

	c, err := LoadConfig(data)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if c.WorkerID != "resource-worker-1" || c.Domain != "resource" {
		t.Fatalf("identity = %q/%q", c.WorkerID, c.Domain)
	}
	if len(c.Capabilities) != 1 || c.Capabilities[0].Type != CapabilityCore {
		t.Fatalf("capabilities = %+v", c.Capabilities)
	}
	decl, ok := c.Graph.State("working")
	if !ok || decl.Type != StateBusy || decl.Timeout != 5*time.Minute {
		t.Fatalf("working state = %+v, %v", decl, ok)
	}
	if c.Policy.TaskTimeout != 45*time.Second {
		t.Fatalf("taskTimeout = %v", c.Policy.TaskTimeout)
	}
	if c.Policy.Retry.MaxRetries != 5 || c.Policy.Retry.Backoff != BackoffExponential || c.Policy.Retry.BaseDelay != 250*time.Millisecond {
		t.Fatalf("retry = %+v", c.Policy.Retry)
	}
	if c.Policy.ResourceLimits["cpu"] != 90 {
		t.Fatalf("resourceLimits = %v", c.Policy.ResourceLimits)
	}
	if c.HistorySize != 16 {
		t.Fatalf("historySize = %d", c.HistorySize)
	}
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	if _, err := LoadConfig([]byte(`workerId: [not scalar`)); err == nil {
		t.Fatal("expected error for malformed YAML")
	}

	// Valid YAML, invalid graph.
	if _, err := LoadConfig([]byte("workerId: w1\n")); err == nil {
		t.Fatal("expected validation error for graph-less config")
	}

	bad := []byte(`
workerId: w1
stateGraph:
  states:
    - name: idle
      type: idle
  initial: idle
policy:
  taskTimeout: not-a-duration
`)
	if _, err := LoadConfig(bad); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}
