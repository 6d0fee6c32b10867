package printer

import (
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ResilienceConfig controls retry/reconnect behavior for flaky device
// connections. Immutable after construction; one instance per adapter.
type ResilienceConfig struct {
	AutoReconnect       bool          `yaml:"auto_reconnect"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryDelay          time.Duration `yaml:"-"`
	HealthCheckInterval time.Duration `yaml:"-"`
	OfflineQueueEnabled bool          `yaml:"offline_queue_enabled"`
	OfflineQueueTimeout time.Duration `yaml:"-"`
}

// UnmarshalYAML accepts durations in time.ParseDuration form ("2s",
// "10m"). Fields absent from the document keep their current values.
func (c *ResilienceConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		AutoReconnect       *bool  `yaml:"auto_reconnect"`
		MaxRetries          *int   `yaml:"max_retries"`
		RetryDelay          string `yaml:"retry_delay"`
		HealthCheckInterval string `yaml:"health_check_interval"`
		OfflineQueueEnabled *bool  `yaml:"offline_queue_enabled"`
		OfflineQueueTimeout string `yaml:"offline_queue_timeout"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.AutoReconnect != nil {
		c.AutoReconnect = *raw.AutoReconnect
	}
	if raw.MaxRetries != nil {
		c.MaxRetries = *raw.MaxRetries
	}
	if raw.OfflineQueueEnabled != nil {
		c.OfflineQueueEnabled = *raw.OfflineQueueEnabled
	}
	for _, f := range []struct {
		name string
		text string
		dst  *time.Duration
	}{
		{"retry_delay", raw.RetryDelay, &c.RetryDelay},
		{"health_check_interval", raw.HealthCheckInterval, &c.HealthCheckInterval},
		{"offline_queue_timeout", raw.OfflineQueueTimeout, &c.OfflineQueueTimeout},
	} {
		if f.text == "" {
			continue
		}
		d, err := time.ParseDuration(f.text)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		AutoReconnect:       true,
		MaxRetries:          3,
		RetryDelay:          time.Second,
		HealthCheckInterval: 30 * time.Second,
		OfflineQueueEnabled: true,
		OfflineQueueTimeout: 10 * time.Minute,
	}
}

// DeviceState tracks the connection state of one physical device. Mutated
// only by the owning adapter; snapshot via the adapter's DeviceState method.
type DeviceState struct {
	Connected           bool       `json:"connected"`
	LastSeen            *time.Time `json:"last_seen,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	ReconnectAttempts   int        `json:"reconnect_attempts"`
}

// deviceStateTracker pairs the state with its guard so adapters can update
// it from both status probes and the print path.
type deviceStateTracker struct {
	mu    sync.Mutex
	state DeviceState
}

func (t *deviceStateTracker) snapshot() DeviceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *deviceStateTracker) markSeen() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.state.Connected = true
	t.state.LastSeen = &now
	t.state.LastError = ""
	t.state.ConsecutiveFailures = 0
}

func (t *deviceStateTracker) markLost(errText string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Connected = false
	if errText != "" {
		t.state.LastError = errText
	}
}

func (t *deviceStateTracker) noteFailure(errText string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.ConsecutiveFailures++
	t.state.LastError = errText
}

func (t *deviceStateTracker) noteReconnectAttempt() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.ReconnectAttempts++
	return t.state.ReconnectAttempts
}
