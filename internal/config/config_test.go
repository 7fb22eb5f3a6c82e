package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.False(t, cfg.Server.TLSEnabled)
	assert.NotEmpty(t, cfg.Server.AllowedOrigins)

	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.Equal(t, 300, cfg.Cache.TTLSeconds)

	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30, cfg.Breaker.CooldownSeconds)

	assert.Equal(t, 30, cfg.Coordinator.HealthIntervalSeconds)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 10, cfg.LLM.ToolIterationCap)
	assert.Equal(t, 5.0, cfg.LLM.DefaultDailyBudgetUSD)

	assert.True(t, cfg.PromptGuard.Enabled)
	assert.Equal(t, 2000, cfg.PromptGuard.TimeoutMS)
	assert.Equal(t, "session", cfg.PromptGuard.Behavior.Window)
	assert.Equal(t, 2, cfg.PromptGuard.Behavior.WarnAt)
	assert.Equal(t, 5, cfg.PromptGuard.Behavior.BlockAt)

	assert.Equal(t, 24, cfg.Flow.DefaultTTLHours)
	assert.Equal(t, 300, cfg.Conversation.IdleTimeoutSeconds)

	assert.NotEmpty(t, cfg.Database.SQLitePath)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name: "valid default config",
			modifyFn: func(cfg *Config) {
				cfg.LLM.APIKey = "test-key"
				cfg.PromptGuard.Enabled = false
			},
			wantError: false,
		},
		{
			name: "invalid port - too low",
			modifyFn: func(cfg *Config) {
				cfg.Server.Port = 0
				cfg.LLM.APIKey = "test-key"
			},
			wantError: true,
			errorMsg:  "port must be between 1 and 65535",
		},
		{
			name: "invalid port - too high",
			modifyFn: func(cfg *Config) {
				cfg.Server.Port = 70000
				cfg.LLM.APIKey = "test-key"
			},
			wantError: true,
			errorMsg:  "port must be between 1 and 65535",
		},
		{
			name: "invalid LLM provider",
			modifyFn: func(cfg *Config) {
				cfg.LLM.Provider = "invalid"
				cfg.LLM.APIKey = "test-key"
			},
			wantError: true,
			errorMsg:  "invalid provider",
		},
		{
			name: "missing LLM api key",
			modifyFn: func(cfg *Config) {
				cfg.LLM.Provider = "openai"
				cfg.LLM.APIKey = ""
			},
			wantError: true,
			errorMsg:  "api_key is required",
		},
		{
			name: "ollama provider does not require api key",
			modifyFn: func(cfg *Config) {
				cfg.LLM.Provider = "ollama"
				cfg.LLM.APIKey = ""
				cfg.PromptGuard.Enabled = false
			},
			wantError: false,
		},
		{
			name: "prompt guard enabled without scorer url",
			modifyFn: func(cfg *Config) {
				cfg.LLM.APIKey = "test-key"
				cfg.PromptGuard.Enabled = true
				cfg.PromptGuard.ScorerBaseURL = ""
			},
			wantError: true,
			errorMsg:  "scorer_base_url is required",
		},
		{
			name: "block_at below warn_at",
			modifyFn: func(cfg *Config) {
				cfg.LLM.APIKey = "test-key"
				cfg.PromptGuard.Enabled = false
				cfg.PromptGuard.Behavior.WarnAt = 5
				cfg.PromptGuard.Behavior.BlockAt = 2
			},
			wantError: true,
			errorMsg:  "block_at",
		},
		{
			name: "missing sqlite path",
			modifyFn: func(cfg *Config) {
				cfg.LLM.APIKey = "test-key"
				cfg.PromptGuard.Enabled = false
				cfg.Database.SQLitePath = ""
			},
			wantError: true,
			errorMsg:  "sqlite_path is required",
		},
		{
			name: "invalid log level",
			modifyFn: func(cfg *Config) {
				cfg.LLM.APIKey = "test-key"
				cfg.PromptGuard.Enabled = false
				cfg.Logging.Level = "invalid"
			},
			wantError: true,
			errorMsg:  "invalid log level",
		},
		{
			name: "invalid log format",
			modifyFn: func(cfg *Config) {
				cfg.LLM.APIKey = "test-key"
				cfg.PromptGuard.Enabled = false
				cfg.Logging.Format = "invalid"
			},
			wantError: true,
			errorMsg:  "invalid log format",
		},
		{
			name: "negative default daily budget",
			modifyFn: func(cfg *Config) {
				cfg.LLM.APIKey = "test-key"
				cfg.PromptGuard.Enabled = false
				cfg.LLM.DefaultDailyBudgetUSD = -5.0
			},
			wantError: true,
			errorMsg:  "default_daily_budget_usd cannot be negative",
		},
		{
			name: "duplicate mcp id",
			modifyFn: func(cfg *Config) {
				cfg.LLM.APIKey = "test-key"
				cfg.PromptGuard.Enabled = false
				cfg.Coordinator.MCPs = []MCPEndpoint{
					{ID: "dup", Name: "a", BaseURL: "http://a"},
					{ID: "dup", Name: "b", BaseURL: "http://b"},
				}
			},
			wantError: true,
			errorMsg:  "duplicate mcp id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)

			errs := cfg.Validate()

			if tt.wantError {
				assert.NotEmpty(t, errs, "expected validation errors but got none")
				if len(errs) > 0 {
					found := false
					for _, err := range errs {
						if tt.errorMsg != "" && contains(err.Error(), tt.errorMsg) {
							found = true
							break
						}
					}
					if tt.errorMsg != "" {
						assert.True(t, found, "expected error message containing '%s', got: %v", tt.errorMsg, errs)
					}
				}
			} else {
				assert.Empty(t, errs, "expected no validation errors but got: %v", errs)
			}
		})
	}
}

func TestConfigManagerLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090

llm:
  provider: "anthropic"
  api_key: "test-anthropic-key"
  model: "claude-3-5-sonnet-20241022"

prompt_guard:
  enabled: false

logging:
  level: "debug"
  format: "text"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	cfg := mgr.Get(ctx)
	require.NotNil(t, cfg)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "test-anthropic-key", cfg.LLM.APIKey)
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.LLM.Model)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestConfigManagerEnvironmentOverrides(t *testing.T) {
	os.Setenv("GATEWAYD_LLM_API_KEY", "env-llm-key")
	os.Setenv("GATEWAYD_PROMPT_GUARD_SCORER_URL", "http://env-scorer:8090")
	defer func() {
		os.Unsetenv("GATEWAYD_LLM_API_KEY")
		os.Unsetenv("GATEWAYD_PROMPT_GUARD_SCORER_URL")
	}()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 8081

llm:
  provider: "anthropic"
  model: "claude-3-5-sonnet-20241022"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	cfg := mgr.Get(ctx)

	assert.Equal(t, "env-llm-key", cfg.LLM.APIKey, "LLM api key should come from environment variable")
	assert.Equal(t, "http://env-scorer:8090", cfg.PromptGuard.ScorerBaseURL, "scorer base url should come from environment variable")
}

func TestConfigManagerMissingFile(t *testing.T) {
	configPath := "/tmp/nonexistent-config.yaml"

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	cfg := mgr.Get(ctx)
	assert.NotNil(t, cfg)
	assert.Equal(t, 8081, cfg.Server.Port)
}

func TestConfigManagerValidation(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 99999

llm:
  provider: "invalid-provider"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	err = mgr.Validate(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 || findSubstring(s, substr))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
