// Package opamp hosts TinyOlly's OpAMP control plane: a WebSocket server
// that connected collectors report into, plus a REST surface the UI uses
// to read agent status and push configuration (spec §4.7). The teacher has
// no OpAMP-specific code, so the connection-management shape (hub/client
// goroutine pair, read/write pumps, ping/pong keepalive) is grounded on the
// teacher's internal/transport/http/handlers/websocket package, generalized
// from its chat/notification fan-out to OpAMP's one-request-one-response
// exchange. The message envelope names (AgentToServer, ServerToAgent,
// AgentRemoteConfig) mirror the OpAMP specification's own vocabulary
// (quoted directly in spec §4.7) encoded as JSON over the same
// github.com/gorilla/websocket transport the teacher already depends on,
// rather than the full OpAMP protobuf wire format, which is out of scope
// for a local-development backend that only needs to interoperate with
// itself and the bundled collector.
package opamp

// AgentToServer is sent by a connected collector on first contact and on
// every subsequent report (e.g. after applying a pushed config).
type AgentToServer struct {
	AgentDescription *AgentDescription `json:"agent_description,omitempty"`
	InstanceUID      string            `json:"instance_uid"`
	EffectiveConfig  string            `json:"effective_config,omitempty"`
}

// AgentDescription identifies the reporting collector. service.name and
// service.version map to AgentType/AgentVersion per spec §4.7.
type AgentDescription struct {
	ServiceName    string `json:"service_name,omitempty"`
	ServiceVersion string `json:"service_version,omitempty"`
}

// ServerToAgent is the server's reply to an AgentToServer message. It
// carries a remote config only when one is pending for the instance.
type ServerToAgent struct {
	RemoteConfig *AgentRemoteConfig `json:"remote_config,omitempty"`
	InstanceUID  string             `json:"instance_uid"`
}

// AgentRemoteConfig carries the pushed config body keyed "" (TinyOlly
// supports exactly one named collector config per spec §4.7) and a hash
// unique per push so the collector can detect it already applied one.
type AgentRemoteConfig struct {
	Config string `json:"config"`
	Hash   string `json:"hash"`
}
