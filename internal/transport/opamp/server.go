package opamp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// WSServer upgrades incoming connections on /v1/opamp to WebSocket and
// drives the per-collector AgentToServer/ServerToAgent exchange. Grounded
// on the teacher's websocket.Handler, minus its auth/user-context lookup
// (collectors carry no identity beyond instance_uid) and its broadcast
// hub (OpAMP is request/response per connection, not fan-out chat).
type WSServer struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	registry   *AgentRegistry
	configs    *ConfigStore
	logger     *slog.Logger
	heartbeat  time.Duration
	port       int
}

// NewWSServer builds the OpAMP WebSocket listener.
func NewWSServer(port int, heartbeat time.Duration, registry *AgentRegistry, configs *ConfigStore, logger *slog.Logger) *WSServer {
	if logger == nil {
		logger = slog.Default()
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	s := &WSServer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		registry:  registry,
		configs:   configs,
		logger:    logger,
		heartbeat: heartbeat,
		port:      port,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/opamp", s.handleConn)
	s.httpServer = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	return s
}

// Start blocks serving connections until Shutdown is called.
func (s *WSServer) Start() error {
	s.logger.Info("starting OpAMP WebSocket server", "port", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight connections until ctx expires.
func (s *WSServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down OpAMP WebSocket server", "port", s.port)
	return s.httpServer.Shutdown(ctx)
}

func (s *WSServer) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("OpAMP WebSocket upgrade failed", "error", err)
		return
	}

	client := &opampClient{
		conn:      conn,
		registry:  s.registry,
		configs:   s.configs,
		logger:    s.logger,
		heartbeat: s.heartbeat,
	}
	go client.writePump()
	client.readPump()
}

// opampClient owns one collector connection's lifetime. writeMu guards
// conn.Write* since readPump replies directly while writePump pings
// concurrently, and gorilla's Conn permits only one writer at a time.
type opampClient struct {
	conn        *websocket.Conn
	registry    *AgentRegistry
	configs     *ConfigStore
	logger      *slog.Logger
	instanceID  string
	heartbeat   time.Duration
	writeMu     sync.Mutex
	registered  bool
}

func (c *opampClient) readPump() {
	defer func() {
		if c.registered {
			c.registry.MarkDisconnected(c.instanceID)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	pongWait := c.heartbeat * 2
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("OpAMP connection closed unexpectedly", "error", err)
			}
			return
		}

		var msg AgentToServer
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("dropping malformed AgentToServer message", "error", err)
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *opampClient) handleMessage(msg AgentToServer) {
	if msg.InstanceUID == "" {
		c.logger.Warn("AgentToServer message missing instance_uid, dropping")
		return
	}

	var agentType, agentVersion string
	if msg.AgentDescription != nil {
		agentType = msg.AgentDescription.ServiceName
		agentVersion = msg.AgentDescription.ServiceVersion
	}

	c.instanceID = msg.InstanceUID
	c.registered = true
	c.registry.Upsert(msg.InstanceUID, agentType, agentVersion, msg.EffectiveConfig, time.Now())

	reply := ServerToAgent{InstanceUID: msg.InstanceUID}
	if pending, ok := c.configs.TakePending(msg.InstanceUID); ok {
		reply.RemoteConfig = &AgentRemoteConfig{Config: pending.Body, Hash: pending.Hash}
	}
	c.writeJSON(reply)
}

func (c *opampClient) writeJSON(v interface{}) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(v); err != nil {
		c.logger.Warn("failed writing ServerToAgent message", "error", err)
	}
}

func (c *opampClient) writePump() {
	interval := c.heartbeat
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.conn.WriteMessage(websocket.PingMessage, nil)
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}
