package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/lineup-predictor/internal/backtest"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hub := NewHub(logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws/backtest-progress", hub.HandleWebSocket)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/backtest-progress"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestHub_BroadcastsProgress(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(backtest.Progress{RunID: "r1", Mode: "ensemble", Period: 7, Processed: 2, Total: 5, Overlap: 8, Status: backtest.StatusEvaluated})

	msg := readMessage(t, conn)
	assert.Equal(t, "backtest_progress", msg.Type)
	assert.Equal(t, 7, msg.Data.Period)
	assert.Equal(t, 8, msg.Data.Overlap)
	assert.Equal(t, backtest.StatusEvaluated, msg.Data.Status)
}

func TestHub_ModeFilter(t *testing.T) {
	hub, url := startHub(t)
	learned := dial(t, url+"?mode=learned")
	all := dial(t, url)
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 2 }, time.Second, 10*time.Millisecond)

	hub.Publish(backtest.Progress{Mode: "heuristic", Period: 6, Status: backtest.StatusSkipped})
	hub.Publish(backtest.Progress{Mode: "learned", Period: 9, Status: backtest.StatusEvaluated})

	assert.Equal(t, 9, readMessage(t, learned).Data.Period)
	assert.Equal(t, 6, readMessage(t, all).Data.Period)
	assert.Equal(t, 9, readMessage(t, all).Data.Period)
}

func TestHub_Unregisters(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
