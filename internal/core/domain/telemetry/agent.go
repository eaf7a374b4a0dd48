package telemetry

import "time"

// AgentConnStatus is the OpAMP connection state of a collector.
type AgentConnStatus string

const (
	AgentConnected    AgentConnStatus = "connected"
	AgentDisconnected AgentConnStatus = "disconnected"
)

// AgentState is the exclusively-owned-by-the-OpAMP-plane record for one
// connected (or previously-connected) collector instance.
type AgentState struct {
	LastSeen        time.Time
	InstanceID      string
	AgentType       string
	AgentVersion    string
	EffectiveConfig string
	Status          AgentConnStatus
}

// PendingConfig is a not-yet-delivered remote config for one instance.
// Last-write-wins: a new Push overwrites any prior pending config.
type PendingConfig struct {
	Body string
	Hash string
}
