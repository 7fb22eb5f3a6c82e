package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketChatMissingIdentityIsRejected(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.testRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketChatHappyPathReceivesWelcomeAndDone(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.testRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
	header := http.Header{}
	header.Set("X-User-Id", "user-42")
	header.Set("X-User-Role", "user")

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	var welcome wireFrame
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "welcome", welcome.Type)

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "message", Text: "hello"}))

	// provider "none" degrades CompleteWithTools; the engine still runs the
	// pipeline and guard and should report the turn ending one way or
	// another within a short deadline.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	sawFrame := false
	for i := 0; i < 5; i++ {
		var f wireFrame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
		sawFrame = true
	}
	assert.True(t, sawFrame)
}
