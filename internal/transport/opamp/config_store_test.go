package opamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCollectorConfig = `
receivers:
  otlp:
    protocols:
      grpc: {}
exporters:
  logging: {}
service:
  pipelines:
    traces:
      receivers: [otlp]
      exporters: [logging]
`

func TestValidateYAML_AcceptsConfigWithRequiredKeys(t *testing.T) {
	assert.NoError(t, ValidateYAML(validCollectorConfig))
}

func TestValidateYAML_RejectsMissingRequiredKey(t *testing.T) {
	err := ValidateYAML("receivers:\n  otlp: {}\n")
	assert.Error(t, err)
}

func TestValidateYAML_RejectsMalformedYAML(t *testing.T) {
	err := ValidateYAML("receivers: [this is not valid")
	assert.Error(t, err)
}

func TestConfigStore_EnqueueThenTakePendingClearsSlot(t *testing.T) {
	s := NewConfigStore("")
	s.Enqueue("agent-1", validCollectorConfig, time.Now())

	pending, ok := s.TakePending("agent-1")
	require.True(t, ok)
	assert.Equal(t, validCollectorConfig, pending.Body)
	assert.NotEmpty(t, pending.Hash)

	_, ok = s.TakePending("agent-1")
	assert.False(t, ok)
}

func TestConfigStore_EnqueueManyFansOutToAllTargets(t *testing.T) {
	s := NewConfigStore("")
	s.EnqueueMany([]string{"agent-1", "agent-2"}, validCollectorConfig, time.Now())

	_, ok1 := s.TakePending("agent-1")
	_, ok2 := s.TakePending("agent-2")
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestConfigStore_SetDefaultUpdatesCurrent(t *testing.T) {
	s := NewConfigStore("old")
	s.SetDefault("new")
	assert.Equal(t, "new", s.Current())
}
