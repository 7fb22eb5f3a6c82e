package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kubilitics/gatewayd/internal/cache"
	"github.com/kubilitics/gatewayd/internal/gwerrors"
	"github.com/kubilitics/gatewayd/internal/mcp/breaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestCoordinatorInvokeSuccessAndCache(t *testing.T) {
	calls := 0
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
	})

	co := New(cache.New(10, time.Minute), breaker.Config{FailureThreshold: 3, Cooldown: time.Second}, nil)
	co.Register(Descriptor{
		ID: "mcp1", Name: "test", BaseURL: srv.URL,
		Tools: []ToolSchema{{Name: "get_thing"}},
	})

	ctx := context.Background()
	res, err := co.Invoke(ctx, "mcp1", "get_thing", map[string]interface{}{"a": 1})
	require.NoError(t, err)
	assert.False(t, res.CacheHit)

	res2, err := co.Invoke(ctx, "mcp1", "get_thing", map[string]interface{}{"a": 1})
	require.NoError(t, err)
	assert.True(t, res2.CacheHit)
	assert.Equal(t, 1, calls)
}

func TestCoordinatorBypassesCacheForMutatingTool(t *testing.T) {
	calls := 0
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
	})

	co := New(cache.New(10, time.Minute), breaker.Config{FailureThreshold: 3, Cooldown: time.Second}, nil)
	co.Register(Descriptor{
		ID: "mcp1", BaseURL: srv.URL,
		Tools: []ToolSchema{{Name: "create_thing"}},
	})

	ctx := context.Background()
	co.Invoke(ctx, "mcp1", "create_thing", nil)
	co.Invoke(ctx, "mcp1", "create_thing", nil)
	assert.Equal(t, 2, calls)
}

func TestCoordinatorUnknownMCP(t *testing.T) {
	co := New(cache.New(10, time.Minute), breaker.Config{}, nil)
	_, err := co.Invoke(context.Background(), "nope", "x", nil)
	require.Error(t, err)
	assert.Equal(t, gwerrors.ToolError, gwerrors.KindOf(err))
}

func TestCoordinatorBreakerOpensAfterFailures(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	co := New(cache.New(10, time.Minute), breaker.Config{FailureThreshold: 2, Cooldown: time.Minute}, nil)
	co.Register(Descriptor{ID: "mcp1", BaseURL: srv.URL, Tools: []ToolSchema{{Name: "t"}}})

	ctx := context.Background()
	co.Invoke(ctx, "mcp1", "t", nil)
	co.Invoke(ctx, "mcp1", "t", nil)

	_, err := co.Invoke(ctx, "mcp1", "t", nil)
	require.Error(t, err)
	assert.Equal(t, gwerrors.BreakerOpen, gwerrors.KindOf(err))
}
