package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(tmpDir string) *Config {
	return &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		MaxSize:      10,
		MaxBackups:   3,
		MaxAge:       7,
		Compress:     false,
		LogLevel:     "info",
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(testConfig(t.TempDir()))
	require.NoError(t, err)
	defer logger.Close()
	assert.NotNil(t, logger)
}

func TestNewLoggerWithInvalidLevel(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.LogLevel = "invalid"
	_, err := NewLogger(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, "logs/audit.log", config.AuditLogPath)
	assert.Equal(t, "logs/app.log", config.AppLogPath)
	assert.Equal(t, 100, config.MaxSize)
	assert.Equal(t, 10, config.MaxBackups)
	assert.Equal(t, "info", config.LogLevel)
}

func TestLogEvent(t *testing.T) {
	cfg := testConfig(t.TempDir())
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	event := NewEvent(EventSessionStarted).
		WithCorrelationID("test-123").
		WithUser("test-user").
		WithSession("sess-1", "conv-1").
		WithResult(ResultSuccess)

	require.NoError(t, logger.Log(ctx, event))
	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(cfg.AuditLogPath)
	require.NoError(t, err)

	logContent := string(content)
	assert.Contains(t, logContent, "test-123")
	assert.Contains(t, logContent, "session.started")
	assert.Contains(t, logContent, "test-user")
}

func TestLogSessionLifecycle(t *testing.T) {
	cfg := testConfig(t.TempDir())
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	require.NoError(t, logger.LogSessionStarted(ctx, "sess-1", "conv-1", "user-1"))
	require.NoError(t, logger.LogSessionEnded(ctx, "sess-1", 5*time.Second))
	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(cfg.AuditLogPath)
	require.NoError(t, err)

	logContent := string(content)
	assert.Contains(t, logContent, "sess-1")
	assert.Contains(t, logContent, "session.started")
	assert.Contains(t, logContent, "session.ended")
}

func TestLogAuthzStage(t *testing.T) {
	cfg := testConfig(t.TempDir())
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	require.NoError(t, logger.LogAuthzStage(ctx, EventUsageCheck, "user-1", "sess-1", false))
	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(cfg.AuditLogPath)
	require.NoError(t, err)
	logContent := string(content)
	assert.Contains(t, logContent, "authz.usage_check")
	assert.Contains(t, logContent, "denied")
}

func TestLogToolInvocation(t *testing.T) {
	cfg := testConfig(t.TempDir())
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	require.NoError(t, logger.LogToolInvocation(ctx, "sess-1", "mcp1", "get_thing", 2*time.Second, nil))
	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(cfg.AuditLogPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "mcp.tool_invoked")
}

func TestBufferAutoFlush(t *testing.T) {
	cfg := testConfig(t.TempDir())
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		event := NewEvent(EventHealthCheck).WithCorrelationID("test").WithResult(ResultSuccess)
		require.NoError(t, logger.Log(ctx, event))
	}

	time.Sleep(1500 * time.Millisecond)

	content, err := os.ReadFile(cfg.AuditLogPath)
	require.NoError(t, err)
	assert.NotEmpty(t, content)
}

func TestBufferFullFlush(t *testing.T) {
	cfg := testConfig(t.TempDir())
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	for i := 0; i < 105; i++ {
		event := NewEvent(EventHealthCheck).WithCorrelationID("test").WithResult(ResultSuccess)
		require.NoError(t, logger.Log(ctx, event))
	}
	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(cfg.AuditLogPath)
	require.NoError(t, err)

	lines := strings.Split(string(content), "\n")
	eventCount := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			eventCount++
		}
	}
	assert.GreaterOrEqual(t, eventCount, 105)
}

func TestCorrelationID(t *testing.T) {
	id1 := GenerateCorrelationID()
	id2 := GenerateCorrelationID()
	assert.NotEqual(t, id1, id2)

	ctx := context.Background()
	assert.Equal(t, "", GetCorrelationID(ctx))

	ctx = WithCorrelationID(ctx, "test-correlation-id")
	assert.Equal(t, "test-correlation-id", GetCorrelationID(ctx))
}

func TestEventBuilderChain(t *testing.T) {
	event := NewEvent(EventToolInvoked).
		WithCorrelationID("corr-123").
		WithUser("admin").
		WithSession("sess-1", "conv-1").
		WithAction("mcp1.get_thing").
		WithDescription("invoked get_thing").
		WithResult(ResultSuccess).
		WithDuration(3 * time.Second).
		WithMetadata("reason", "user request")

	assert.Equal(t, "corr-123", event.CorrelationID)
	assert.Equal(t, "admin", event.User)
	assert.Equal(t, "sess-1", event.SessionID)
	assert.Equal(t, "mcp1.get_thing", event.Action)
	assert.Equal(t, ResultSuccess, event.Result)
	assert.Equal(t, int64(3000), event.DurationMs)
	assert.Equal(t, "user request", event.Metadata["reason"])
}

func TestEventJSONSerialization(t *testing.T) {
	event := NewEvent(EventSessionStarted).
		WithCorrelationID("sess-789").
		WithUser("system").
		WithResult(ResultSuccess)

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "sess-789", decoded.CorrelationID)
	assert.Equal(t, "system", decoded.User)
	assert.Equal(t, EventSessionStarted, decoded.EventType)
	assert.Equal(t, ResultSuccess, decoded.Result)
}
