package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("GATEWAYD")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// File not found via viper - OK, use defaults + env vars.
		} else if os.IsNotExist(err) {
			// File not found via os - OK, use defaults + env vars.
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update.
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.tls_enabled", defaults.Server.TLSEnabled)
	m.viper.SetDefault("server.tls_cert_path", defaults.Server.TLSCertPath)
	m.viper.SetDefault("server.tls_key_path", defaults.Server.TLSKeyPath)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)

	m.viper.SetDefault("cache.max_entries", defaults.Cache.MaxEntries)
	m.viper.SetDefault("cache.ttl_seconds", defaults.Cache.TTLSeconds)

	m.viper.SetDefault("breaker.failure_threshold", defaults.Breaker.FailureThreshold)
	m.viper.SetDefault("breaker.cooldown_seconds", defaults.Breaker.CooldownSeconds)

	m.viper.SetDefault("coordinator.health_interval_seconds", defaults.Coordinator.HealthIntervalSeconds)

	m.viper.SetDefault("llm.provider", defaults.LLM.Provider)
	m.viper.SetDefault("llm.api_key", defaults.LLM.APIKey)
	m.viper.SetDefault("llm.base_url", defaults.LLM.BaseURL)
	m.viper.SetDefault("llm.model", defaults.LLM.Model)
	m.viper.SetDefault("llm.tool_iteration_cap", defaults.LLM.ToolIterationCap)
	m.viper.SetDefault("llm.default_daily_budget_usd", defaults.LLM.DefaultDailyBudgetUSD)

	m.viper.SetDefault("prompt_guard.enabled", defaults.PromptGuard.Enabled)
	m.viper.SetDefault("prompt_guard.scorer_base_url", defaults.PromptGuard.ScorerBaseURL)
	m.viper.SetDefault("prompt_guard.timeout_ms", defaults.PromptGuard.TimeoutMS)
	m.viper.SetDefault("prompt_guard.threshold", defaults.PromptGuard.Threshold)
	m.viper.SetDefault("prompt_guard.bypass_roles", defaults.PromptGuard.BypassRoles)
	m.viper.SetDefault("prompt_guard.behavior.window", defaults.PromptGuard.Behavior.Window)
	m.viper.SetDefault("prompt_guard.behavior.warn_at", defaults.PromptGuard.Behavior.WarnAt)
	m.viper.SetDefault("prompt_guard.behavior.block_at", defaults.PromptGuard.Behavior.BlockAt)

	m.viper.SetDefault("flow.default_ttl_hours", defaults.Flow.DefaultTTLHours)

	m.viper.SetDefault("conversation.idle_timeout_seconds", defaults.Conversation.IdleTimeoutSeconds)

	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)

	m.viper.SetDefault("grpc_admin.enabled", defaults.GRPCAdmin.Enabled)
	m.viper.SetDefault("grpc_admin.port", defaults.GRPCAdmin.Port)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.TLSEnabled = m.viper.GetBool("server.tls_enabled")
	cfg.Server.TLSCertPath = m.viper.GetString("server.tls_cert_path")
	cfg.Server.TLSKeyPath = m.viper.GetString("server.tls_key_path")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")

	cfg.Cache.MaxEntries = m.viper.GetInt("cache.max_entries")
	cfg.Cache.TTLSeconds = m.viper.GetInt("cache.ttl_seconds")

	cfg.Breaker.FailureThreshold = m.viper.GetInt("breaker.failure_threshold")
	cfg.Breaker.CooldownSeconds = m.viper.GetInt("breaker.cooldown_seconds")

	cfg.Coordinator.HealthIntervalSeconds = m.viper.GetInt("coordinator.health_interval_seconds")
	cfg.Coordinator.MCPs = unmarshalMCPEndpoints(m.viper.Get("coordinator.mcps"))

	cfg.LLM.Provider = m.viper.GetString("llm.provider")
	cfg.LLM.APIKey = m.viper.GetString("llm.api_key")
	cfg.LLM.BaseURL = m.viper.GetString("llm.base_url")
	cfg.LLM.Model = m.viper.GetString("llm.model")
	cfg.LLM.ToolIterationCap = m.viper.GetInt("llm.tool_iteration_cap")
	cfg.LLM.DefaultDailyBudgetUSD = m.viper.GetFloat64("llm.default_daily_budget_usd")

	cfg.PromptGuard.Enabled = m.viper.GetBool("prompt_guard.enabled")
	cfg.PromptGuard.ScorerBaseURL = m.viper.GetString("prompt_guard.scorer_base_url")
	cfg.PromptGuard.TimeoutMS = m.viper.GetInt("prompt_guard.timeout_ms")
	cfg.PromptGuard.Threshold = m.viper.GetFloat64("prompt_guard.threshold")
	cfg.PromptGuard.BypassRoles = m.viper.GetStringSlice("prompt_guard.bypass_roles")
	cfg.PromptGuard.Behavior.Window = m.viper.GetString("prompt_guard.behavior.window")
	cfg.PromptGuard.Behavior.WarnAt = m.viper.GetInt("prompt_guard.behavior.warn_at")
	cfg.PromptGuard.Behavior.BlockAt = m.viper.GetInt("prompt_guard.behavior.block_at")

	cfg.Flow.DefaultTTLHours = m.viper.GetInt("flow.default_ttl_hours")

	cfg.Conversation.IdleTimeoutSeconds = m.viper.GetInt("conversation.idle_timeout_seconds")

	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")

	cfg.GRPCAdmin.Enabled = m.viper.GetBool("grpc_admin.enabled")
	cfg.GRPCAdmin.Port = m.viper.GetInt("grpc_admin.port")

	m.config = cfg
	return nil
}

// unmarshalMCPEndpoints decodes the coordinator.mcps config list, which
// viper hands back as []interface{} of map[string]interface{}.
func unmarshalMCPEndpoints(raw interface{}) []MCPEndpoint {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]MCPEndpoint, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		ep := MCPEndpoint{}
		if v, ok := m["id"].(string); ok {
			ep.ID = v
		}
		if v, ok := m["name"].(string); ok {
			ep.Name = v
		}
		if v, ok := m["base_url"].(string); ok {
			ep.BaseURL = v
		}
		out = append(out, ep)
	}
	return out
}

// applyEnvOverrides applies environment variable overrides for sensitive
// data that should never live in a checked-in YAML file.
func (m *viperConfigManager) applyEnvOverrides() {
	if apiKey := os.Getenv("GATEWAYD_LLM_API_KEY"); apiKey != "" {
		m.config.LLM.APIKey = apiKey
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" && m.config.LLM.APIKey == "" {
		m.config.LLM.APIKey = apiKey
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" && m.config.LLM.APIKey == "" {
		m.config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("GATEWAYD_LLM_BASE_URL"); baseURL != "" {
		m.config.LLM.BaseURL = baseURL
	}
	if scorerURL := os.Getenv("GATEWAYD_PROMPT_GUARD_SCORER_URL"); scorerURL != "" {
		m.config.PromptGuard.ScorerBaseURL = scorerURL
	}
}
