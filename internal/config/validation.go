package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	if c.Server.TLSEnabled {
		if c.Server.TLSCertPath == "" {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_cert_path",
				Message: "tls_cert_path is required when tls_enabled is true",
			})
		} else if _, err := os.Stat(c.Server.TLSCertPath); os.IsNotExist(err) {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_cert_path",
				Message: fmt.Sprintf("certificate file does not exist: %s", c.Server.TLSCertPath),
			})
		}

		if c.Server.TLSKeyPath == "" {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_key_path",
				Message: "tls_key_path is required when tls_enabled is true",
			})
		} else if _, err := os.Stat(c.Server.TLSKeyPath); os.IsNotExist(err) {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_key_path",
				Message: fmt.Sprintf("key file does not exist: %s", c.Server.TLSKeyPath),
			})
		}
	}

	if c.Cache.MaxEntries < 1 {
		errs = append(errs, &ValidationError{
			Field:   "cache.max_entries",
			Message: fmt.Sprintf("max_entries must be at least 1, got %d", c.Cache.MaxEntries),
		})
	}
	if c.Cache.TTLSeconds < 0 {
		errs = append(errs, &ValidationError{
			Field:   "cache.ttl_seconds",
			Message: fmt.Sprintf("ttl_seconds cannot be negative, got %d", c.Cache.TTLSeconds),
		})
	}

	if c.Breaker.FailureThreshold < 1 {
		errs = append(errs, &ValidationError{
			Field:   "breaker.failure_threshold",
			Message: fmt.Sprintf("failure_threshold must be at least 1, got %d", c.Breaker.FailureThreshold),
		})
	}
	if c.Breaker.CooldownSeconds < 0 {
		errs = append(errs, &ValidationError{
			Field:   "breaker.cooldown_seconds",
			Message: fmt.Sprintf("cooldown_seconds cannot be negative, got %d", c.Breaker.CooldownSeconds),
		})
	}

	if c.Coordinator.HealthIntervalSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "coordinator.health_interval_seconds",
			Message: fmt.Sprintf("health_interval_seconds must be at least 1, got %d", c.Coordinator.HealthIntervalSeconds),
		})
	}
	seen := make(map[string]bool, len(c.Coordinator.MCPs))
	for _, ep := range c.Coordinator.MCPs {
		if ep.ID == "" {
			errs = append(errs, &ValidationError{
				Field:   "coordinator.mcps[].id",
				Message: "mcp id cannot be empty",
			})
			continue
		}
		if seen[ep.ID] {
			errs = append(errs, &ValidationError{
				Field:   "coordinator.mcps[].id",
				Message: fmt.Sprintf("duplicate mcp id %q", ep.ID),
			})
		}
		seen[ep.ID] = true
		if ep.BaseURL == "" {
			errs = append(errs, &ValidationError{
				Field:   "coordinator.mcps[].base_url",
				Message: fmt.Sprintf("mcp %q: base_url is required", ep.ID),
			})
		}
	}

	validProviders := map[string]bool{
		"openai":    true,
		"anthropic": true,
		"ollama":    true,
		"custom":    true,
		"none":      true,
	}
	if !validProviders[c.LLM.Provider] {
		errs = append(errs, &ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: openai, anthropic, ollama, custom, none", c.LLM.Provider),
		})
	}
	if c.LLM.Provider != "ollama" && c.LLM.Provider != "none" && c.LLM.APIKey == "" {
		errs = append(errs, &ValidationError{
			Field:   "llm.api_key",
			Message: fmt.Sprintf("api_key is required for provider %q (config or GATEWAYD_LLM_API_KEY env var)", c.LLM.Provider),
		})
	}
	if c.LLM.ToolIterationCap < 1 {
		errs = append(errs, &ValidationError{
			Field:   "llm.tool_iteration_cap",
			Message: fmt.Sprintf("tool_iteration_cap must be at least 1, got %d", c.LLM.ToolIterationCap),
		})
	}
	if c.LLM.DefaultDailyBudgetUSD < 0 {
		errs = append(errs, &ValidationError{
			Field:   "llm.default_daily_budget_usd",
			Message: fmt.Sprintf("default_daily_budget_usd cannot be negative, got %.2f", c.LLM.DefaultDailyBudgetUSD),
		})
	}

	if c.PromptGuard.Enabled {
		if c.PromptGuard.ScorerBaseURL == "" {
			errs = append(errs, &ValidationError{
				Field:   "prompt_guard.scorer_base_url",
				Message: "scorer_base_url is required when prompt_guard is enabled",
			})
		}
		if c.PromptGuard.TimeoutMS < 1 {
			errs = append(errs, &ValidationError{
				Field:   "prompt_guard.timeout_ms",
				Message: fmt.Sprintf("timeout_ms must be at least 1, got %d", c.PromptGuard.TimeoutMS),
			})
		}
	}
	if c.PromptGuard.Threshold < 0 || c.PromptGuard.Threshold > 1 {
		errs = append(errs, &ValidationError{
			Field:   "prompt_guard.threshold",
			Message: fmt.Sprintf("threshold must be between 0 and 1, got %.2f", c.PromptGuard.Threshold),
		})
	}
	validWindows := map[string]bool{"message": true, "session": true, "day": true}
	if !validWindows[c.PromptGuard.Behavior.Window] {
		errs = append(errs, &ValidationError{
			Field:   "prompt_guard.behavior.window",
			Message: fmt.Sprintf("invalid window '%s', must be one of: message, session, day", c.PromptGuard.Behavior.Window),
		})
	}
	if c.PromptGuard.Behavior.WarnAt < 0 {
		errs = append(errs, &ValidationError{
			Field:   "prompt_guard.behavior.warn_at",
			Message: fmt.Sprintf("warn_at cannot be negative, got %d", c.PromptGuard.Behavior.WarnAt),
		})
	}
	if c.PromptGuard.Behavior.BlockAt < c.PromptGuard.Behavior.WarnAt {
		errs = append(errs, &ValidationError{
			Field:   "prompt_guard.behavior.block_at",
			Message: fmt.Sprintf("block_at (%d) must be >= warn_at (%d)", c.PromptGuard.Behavior.BlockAt, c.PromptGuard.Behavior.WarnAt),
		})
	}

	if c.Flow.DefaultTTLHours < 1 {
		errs = append(errs, &ValidationError{
			Field:   "flow.default_ttl_hours",
			Message: fmt.Sprintf("default_ttl_hours must be at least 1, got %d", c.Flow.DefaultTTLHours),
		})
	}

	if c.Conversation.IdleTimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "conversation.idle_timeout_seconds",
			Message: fmt.Sprintf("idle_timeout_seconds must be at least 1, got %d", c.Conversation.IdleTimeoutSeconds),
		})
	}

	if c.Database.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.sqlite_path",
			Message: "sqlite_path is required",
		})
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, text", c.Logging.Format),
		})
	}

	if c.GRPCAdmin.Enabled && (c.GRPCAdmin.Port < 1 || c.GRPCAdmin.Port > 65535) {
		errs = append(errs, &ValidationError{
			Field:   "grpc_admin.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.GRPCAdmin.Port),
		})
	}

	return errs
}
