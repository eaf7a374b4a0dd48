package opamp

import (
	"sync"
	"time"

	"tinyolly/internal/core/domain/telemetry"
)

// AgentRegistry is the exclusive owner of agent records (spec §3
// "Ownership"). It is safe for concurrent use by the WebSocket connection
// goroutines (writers) and the REST status/config handlers (readers),
// mirroring the teacher's websocket.Hub's own mutex-guarded client map.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]*telemetry.AgentState
}

// NewAgentRegistry returns an empty registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{agents: make(map[string]*telemetry.AgentState)}
}

// Upsert records a report from instanceID, creating the AgentState on first
// contact and overwriting the mutable fields on every subsequent one.
// agentType/agentVersion/effectiveConfig are left unchanged when the caller
// passes an empty string, since an AgentToServer message carries them only
// when they changed.
func (r *AgentRegistry) Upsert(instanceID, agentType, agentVersion, effectiveConfig string, seenAt time.Time) *telemetry.AgentState {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.agents[instanceID]
	if !ok {
		state = &telemetry.AgentState{InstanceID: instanceID}
		r.agents[instanceID] = state
	}
	if agentType != "" {
		state.AgentType = agentType
	}
	if agentVersion != "" {
		state.AgentVersion = agentVersion
	}
	if effectiveConfig != "" {
		state.EffectiveConfig = effectiveConfig
	}
	state.LastSeen = seenAt
	state.Status = telemetry.AgentConnected

	snapshot := *state
	return &snapshot
}

// MarkDisconnected flips an agent's status without deleting its record, so
// its last-known state remains inspectable (spec §4.7 "retain its record
// for inspection until a new agent with the same id re-registers").
func (r *AgentRegistry) MarkDisconnected(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.agents[instanceID]; ok {
		state.Status = telemetry.AgentDisconnected
	}
}

// Get returns a copy of the agent record for instanceID, if any.
func (r *AgentRegistry) Get(instanceID string) (telemetry.AgentState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.agents[instanceID]
	if !ok {
		return telemetry.AgentState{}, false
	}
	return *state, true
}

// List returns a snapshot of every known agent, connected or not.
func (r *AgentRegistry) List() []telemetry.AgentState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]telemetry.AgentState, 0, len(r.agents))
	for _, state := range r.agents {
		out = append(out, *state)
	}
	return out
}

// Counts reports how many known agents are currently connected vs. total.
func (r *AgentRegistry) Counts() (connected, total int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total = len(r.agents)
	for _, state := range r.agents {
		if state.Status == telemetry.AgentConnected {
			connected++
		}
	}
	return connected, total
}

// ConnectedInstanceIDs returns the instance IDs currently marked connected,
// used to fan a newly-pushed config out to every live collector.
func (r *AgentRegistry) ConnectedInstanceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.agents))
	for id, state := range r.agents {
		if state.Status == telemetry.AgentConnected {
			out = append(out, id)
		}
	}
	return out
}
