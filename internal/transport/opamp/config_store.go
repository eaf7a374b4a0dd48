package opamp

import (
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"tinyolly/internal/core/domain/telemetry"
)

// requiredConfigKeys are the top-level YAML keys a pushed collector config
// must carry. Validation is superficial by design (spec §4.7): TinyOlly
// checks structure, not collector-specific receiver/exporter schemas.
var requiredConfigKeys = []string{"receivers", "exporters", "service"}

// ConfigStore holds the current default collector config and any configs
// enqueued for delivery to specific instances on their next AgentToServer.
type ConfigStore struct {
	mu      sync.RWMutex
	current string
	pending map[string]*telemetry.PendingConfig
}

// NewConfigStore seeds the store with an initial default config (may be
// empty, e.g. when no collector-config file was configured).
func NewConfigStore(initial string) *ConfigStore {
	return &ConfigStore{
		current: initial,
		pending: make(map[string]*telemetry.PendingConfig),
	}
}

// ValidateYAML reports whether body superficially looks like a collector
// config: valid YAML carrying every key in requiredConfigKeys.
func ValidateYAML(body string) error {
	var doc map[string]interface{}
	if err := yaml.Unmarshal([]byte(body), &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	for _, key := range requiredConfigKeys {
		if _, ok := doc[key]; !ok {
			return fmt.Errorf("missing required key %q", key)
		}
	}
	return nil
}

// Current returns the current default config body.
func (s *ConfigStore) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetDefault installs body as the new default config. Callers must have
// already validated it with ValidateYAML.
func (s *ConfigStore) SetDefault(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = body
}

// Enqueue marks body as pending delivery to instanceID, overwriting any
// earlier pending config for that instance (last-write-wins).
func (s *ConfigStore) Enqueue(instanceID, body string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[instanceID] = &telemetry.PendingConfig{
		Body: body,
		Hash: fmt.Sprintf("%d", now.UnixNano()),
	}
}

// EnqueueMany is Enqueue applied to every instance in instanceIDs, used to
// fan a config push out to all currently-connected collectors.
func (s *ConfigStore) EnqueueMany(instanceIDs []string, body string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range instanceIDs {
		s.pending[id] = &telemetry.PendingConfig{
			Body: body,
			Hash: fmt.Sprintf("%d", now.UnixNano()),
		}
	}
}

// TakePending returns and clears the pending config for instanceID, if
// any, implementing the "respond then clear the pending slot" rule of
// spec §4.7.
func (s *ConfigStore) TakePending(instanceID string) (*telemetry.PendingConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, ok := s.pending[instanceID]
	if !ok {
		return nil, false
	}
	delete(s.pending, instanceID)
	return pc, true
}
