package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/price-engine/pkg/price"
)

func dialWS(t *testing.T, ws *WebSocketServer) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(ws)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

func TestWebSocket_StreamsEngineEvents(t *testing.T) {
	ws := NewWebSocketServer(18, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ws.Run(ctx)

	conn := dialWS(t, ws)
	require.Eventually(t, func() bool { return ws.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	// Events emitted by a real engine while it registers assets reach the client.
	engine := newTestEngine(t, ws)

	var added EventMessage
	readJSON(t, conn, &added)
	assert.Equal(t, "event", added.Type)
	assert.Equal(t, string(price.EventAssetAdded), added.Event)
	assert.Equal(t, ohm.Hex(), added.Asset)
	assert.Empty(t, added.Price)

	readJSON(t, conn, &added)
	assert.Equal(t, dai.Hex(), added.Asset)

	require.NoError(t, engine.StoreObservations(context.Background(), admin))

	var stored EventMessage
	readJSON(t, conn, &stored)
	assert.Equal(t, string(price.EventPriceStored), stored.Event)
	assert.Equal(t, dai.Hex(), stored.Asset)
	assert.Equal(t, "1000000000000000000", stored.Price)
	assert.Equal(t, "1", stored.Value)
	assert.Equal(t, testNow, stored.Timestamp)
}

func TestWebSocket_Subscriptions(t *testing.T) {
	ws := NewWebSocketServer(18, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ws.Run(ctx)

	conn := dialWS(t, ws)

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "subscribe", Assets: []string{strings.ToLower(dai.Hex())}}))
	var ack map[string]interface{}
	readJSON(t, conn, &ack)
	assert.Equal(t, "subscribed", ack["type"])

	ws.Emit(price.Event{Type: price.EventAssetRemoved, Asset: ohm})
	ws.Emit(price.Event{Type: price.EventAssetRemoved, Asset: dai})

	var msg EventMessage
	readJSON(t, conn, &msg)
	assert.Equal(t, dai.Hex(), msg.Asset, "ohm is filtered out")

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "ping"}))
	var pong map[string]interface{}
	readJSON(t, conn, &pong)
	assert.Equal(t, "pong", pong["type"])
}

func TestWebSocket_EmitNeverBlocks(t *testing.T) {
	ws := NewWebSocketServer(18, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			ws.Emit(price.Event{Type: price.EventPriceStored, Asset: ohm})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Emit blocked without a running broadcaster")
	}
}

func TestWebSocket_RunClosesClients(t *testing.T) {
	ws := NewWebSocketServer(18, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go ws.Run(ctx)

	conn := dialWS(t, ws)
	require.Eventually(t, func() bool { return ws.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return ws.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
