package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging.
type Logger interface {
	// Log logs an audit event.
	Log(ctx context.Context, event *Event) error

	// LogSessionStarted/Ended log chat session lifecycle events.
	LogSessionStarted(ctx context.Context, sessionID, conversationID, userID string) error
	LogSessionEnded(ctx context.Context, sessionID string, duration time.Duration) error

	// LogAuthzStage logs one authorization-pipeline checkpoint.
	LogAuthzStage(ctx context.Context, stage EventType, userID, sessionID string, allowed bool) error

	// LogToolInvocation logs an MCP tool call outcome.
	LogToolInvocation(ctx context.Context, sessionID, mcpID, tool string, duration time.Duration, err error) error

	// LogPromptGuardDecision logs a prompt-guard mediator verdict.
	LogPromptGuardDecision(ctx context.Context, sessionID, verdict string, timedOut bool) error

	// Sync flushes buffered log entries.
	Sync() error

	// Close closes the audit logger.
	Close() error
}

// Config represents audit logger configuration.
type Config struct {
	AuditLogPath string
	AppLogPath   string
	MaxSize      int
	MaxBackups   int
	MaxAge       int
	Compress     bool
	LogLevel     string
}

// DefaultConfig returns default audit logger configuration.
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100,
		MaxBackups:   10,
		MaxAge:       30,
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger.
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	appCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(appRotator), level)
	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	auditCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(auditRotator), zapcore.InfoLevel)
	auditZapLogger := zap.New(auditCore)

	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event.
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)

	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}
	return nil
}

func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]
	return nil
}

func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

func (l *auditLogger) LogSessionStarted(ctx context.Context, sessionID, conversationID, userID string) error {
	event := NewEvent(EventSessionStarted).
		WithCorrelationID(sessionID).
		WithSession(sessionID, conversationID).
		WithUser(userID).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("session %s started for user %s", sessionID, userID))
	return l.Log(ctx, event)
}

func (l *auditLogger) LogSessionEnded(ctx context.Context, sessionID string, duration time.Duration) error {
	event := NewEvent(EventSessionEnded).
		WithCorrelationID(sessionID).
		WithSession(sessionID, "").
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("session %s ended", sessionID))
	return l.Log(ctx, event)
}

func (l *auditLogger) LogAuthzStage(ctx context.Context, stage EventType, userID, sessionID string, allowed bool) error {
	result := ResultSuccess
	if !allowed {
		result = ResultDenied
	}
	event := NewEvent(stage).
		WithSession(sessionID, "").
		WithUser(userID).
		WithResult(result).
		WithDescription(fmt.Sprintf("%s for user %s: allowed=%v", stage, userID, allowed))
	return l.Log(ctx, event)
}

func (l *auditLogger) LogToolInvocation(ctx context.Context, sessionID, mcpID, tool string, duration time.Duration, err error) error {
	event := NewEvent(EventToolInvoked).
		WithSession(sessionID, "").
		WithAction(fmt.Sprintf("%s.%s", mcpID, tool)).
		WithDuration(duration).
		WithResult(ResultSuccess)
	if err != nil {
		event.EventType = EventToolFailed
		event.WithError(err, "tool_error")
	}
	return l.Log(ctx, event)
}

func (l *auditLogger) LogPromptGuardDecision(ctx context.Context, sessionID, verdict string, timedOut bool) error {
	eventType := EventPromptGuardEvaluated
	if timedOut {
		eventType = EventPromptGuardTimeout
	}
	event := NewEvent(eventType).
		WithSession(sessionID, "").
		WithResult(ResultSuccess).
		WithMetadata("verdict", verdict)
	return l.Log(ctx, event)
}

// Sync flushes buffered log entries.
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}
	if err := l.auditLogger.Sync(); err != nil {
		return err
	}
	return l.appLogger.Sync()
}

// Close closes the audit logger.
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()
	return l.Sync()
}

// GetCorrelationID extracts correlation ID from context.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

type correlationIDKey struct{}

// WithCorrelationID adds correlation ID to context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// GenerateCorrelationID generates a new correlation ID.
func GenerateCorrelationID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}
