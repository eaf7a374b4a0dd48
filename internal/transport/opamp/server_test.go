package opamp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSServer_UpsertsAgentAndDeliversPendingConfig(t *testing.T) {
	const port = 18199
	registry := NewAgentRegistry()
	configs := NewConfigStore("")
	configs.Enqueue("agent-1", validCollectorConfig, time.Now())

	server := NewWSServer(port, 50*time.Millisecond, registry, configs, nil)
	go func() { _ = server.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	time.Sleep(100 * time.Millisecond)

	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("127.0.0.1:%d", port), Path: "/v1/opamp"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	defer conn.Close()

	req := AgentToServer{
		InstanceUID:      "agent-1",
		AgentDescription: &AgentDescription{ServiceName: "otelcol", ServiceVersion: "0.100.0"},
	}
	require.NoError(t, conn.WriteJSON(req))

	var reply ServerToAgent
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&reply))

	assert.Equal(t, "agent-1", reply.InstanceUID)
	require.NotNil(t, reply.RemoteConfig)
	assert.Equal(t, validCollectorConfig, reply.RemoteConfig.Config)
	assert.NotEmpty(t, reply.RemoteConfig.Hash)

	state, ok := registry.Get("agent-1")
	require.True(t, ok)
	assert.Equal(t, "otelcol", state.AgentType)
	assert.Equal(t, "0.100.0", state.AgentVersion)

	_, stillPending := configs.TakePending("agent-1")
	assert.False(t, stillPending)
}

func TestWSServer_DropsMessageMissingInstanceUID(t *testing.T) {
	const port = 18200
	registry := NewAgentRegistry()
	configs := NewConfigStore("")

	server := NewWSServer(port, 50*time.Millisecond, registry, configs, nil)
	go func() { _ = server.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	time.Sleep(100 * time.Millisecond)

	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("127.0.0.1:%d", port), Path: "/v1/opamp"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	defer conn.Close()

	raw, _ := json.Marshal(map[string]interface{}{"agent_description": map[string]string{"service_name": "otelcol"}})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, registry.List())
}
