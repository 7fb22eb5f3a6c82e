package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestAdminObserveReceivesSubscribedFlowEvents(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.testRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/admin/observe"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(observeSubscribeFrame{Action: "subscribe"}))

	srv.monitoring.Enable("user-55", time.Hour)
	srv.tracker.Record("sess-1", "user-55", "auth_check", map[string]interface{}{"ok": true}, time.Now())

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev observeEventFrame
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, "auth_check", ev.Kind)
	require.Equal(t, "user-55", ev.UserID)
}

func TestAdminObserveRejectsNonSubscribeFirstFrame(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.testRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/admin/observe"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp map[string]string
	require.NoError(t, conn.ReadJSON(&resp))
	require.Contains(t, resp, "error")
}
