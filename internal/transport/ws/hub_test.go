package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/airwayfind/wayfinding-core/internal/bus"
)

func TestHandler_SendsHelloFrameOnConnect(t *testing.T) {
	hub := bus.NewHub(zap.NewNop())
	defer hub.Shutdown()

	h := NewHandler(hub, func() uint64 { return 7 }, zap.NewNop())
	server := httptest.NewServer(h)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?userId=u1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello HelloFrame
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "hello", hello.Type)
	require.Equal(t, ProtocolVersion, hello.Protocol)
	require.Equal(t, uint64(7), hello.GraphVersion)
	require.Equal(t, "u1", hello.UserID)
}

func TestHandler_MissingUserIDRejected(t *testing.T) {
	hub := bus.NewHub(zap.NewNop())
	defer hub.Shutdown()

	h := NewHandler(hub, func() uint64 { return 1 }, zap.NewNop())
	server := httptest.NewServer(h)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 400, resp.StatusCode)
}

func TestHandler_StreamsPublishedEvents(t *testing.T) {
	hub := bus.NewHub(zap.NewNop())
	defer hub.Shutdown()

	h := NewHandler(hub, func() uint64 { return 1 }, zap.NewNop())
	server := httptest.NewServer(h)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?userId=u2"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello HelloFrame
	require.NoError(t, conn.ReadJSON(&hello))

	actor := hub.GetOrCreate("u2", "default")
	actor.Publish(bus.Event{Kind: bus.EventPose, At: time.Now()})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, string(bus.EventPose), frame["Kind"])
}
