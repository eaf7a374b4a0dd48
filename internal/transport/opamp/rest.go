package opamp

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"tinyolly/pkg/response"
)

// RESTHandlers implements the UI-facing surface of spec §4.7: agent status,
// effective-config lookup, and config push. Grounded on the http package's
// QueryHandlers shape (thin gin.HandlerFunc methods over a shared registry)
// rather than the teacher's REST handlers, which carry auth/org-scoping
// that has no counterpart here.
type RESTHandlers struct {
	registry *AgentRegistry
	configs  *ConfigStore
	logger   *slog.Logger
}

// NewRESTHandlers wires the REST surface to the shared registry/config
// store the WebSocket server also writes to.
func NewRESTHandlers(registry *AgentRegistry, configs *ConfigStore, logger *slog.Logger) *RESTHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &RESTHandlers{registry: registry, configs: configs, logger: logger}
}

type agentStatusDTO struct {
	LastSeen     string `json:"last_seen"`
	InstanceID   string `json:"instance_id"`
	AgentType    string `json:"agent_type"`
	AgentVersion string `json:"agent_version"`
	Status       string `json:"status"`
}

// Status handles GET /status: every known agent plus connected/total
// counts.
func (h *RESTHandlers) Status(c *gin.Context) {
	agents := h.registry.List()
	connected, total := h.registry.Counts()

	dtos := make([]agentStatusDTO, 0, len(agents))
	for _, a := range agents {
		dtos = append(dtos, agentStatusDTO{
			InstanceID:   a.InstanceID,
			AgentType:    a.AgentType,
			AgentVersion: a.AgentVersion,
			Status:       string(a.Status),
			LastSeen:     a.LastSeen.UTC().Format(time.RFC3339),
		})
	}

	response.Success(c, gin.H{
		"agents":    dtos,
		"connected": connected,
		"total":     total,
	})
}

// GetConfig handles GET /config?instance_id=: the addressed agent's
// effective config, falling back to the server's current default when the
// agent hasn't reported one (or no instance_id was given).
func (h *RESTHandlers) GetConfig(c *gin.Context) {
	instanceID := c.Query("instance_id")

	if instanceID == "" {
		response.Success(c, gin.H{"config": h.configs.Current(), "source": "default"})
		return
	}

	agent, ok := h.registry.Get(instanceID)
	if !ok {
		response.NotFound(c, "agent")
		return
	}
	if agent.EffectiveConfig == "" {
		response.Success(c, gin.H{"config": h.configs.Current(), "source": "default", "instance_id": instanceID})
		return
	}
	response.Success(c, gin.H{"config": agent.EffectiveConfig, "source": "agent", "instance_id": instanceID})
}

type postConfigRequest struct {
	Config     string `json:"config"`
	InstanceID string `json:"instance_id,omitempty"`
}

// PostConfig handles POST /config: validates the YAML body, installs it as
// the new default, and enqueues it as pending for delivery — either to
// every connected collector, or to the single addressed instance_id.
func (h *RESTHandlers) PostConfig(c *gin.Context) {
	var req postConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	if err := ValidateYAML(req.Config); err != nil {
		response.BadRequest(c, "invalid collector config", err.Error())
		return
	}

	now := time.Now()
	h.configs.SetDefault(req.Config)

	if req.InstanceID != "" {
		if _, ok := h.registry.Get(req.InstanceID); !ok {
			response.NotFound(c, "agent")
			return
		}
		h.configs.Enqueue(req.InstanceID, req.Config, now)
		response.Success(c, gin.H{"enqueued_for": []string{req.InstanceID}})
		return
	}

	targets := h.registry.ConnectedInstanceIDs()
	h.configs.EnqueueMany(targets, req.Config, now)
	response.Success(c, gin.H{"enqueued_for": targets})
}
