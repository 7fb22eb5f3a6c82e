package config

import "context"

// Package config provides configuration management for gatewayd.
//
// Responsibilities:
//   - Load configuration from YAML files, environment variables, and CLI flags
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading (for some settings)
//   - Manage sensitive data (the LLM API key)
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. CLI flags (highest priority)
//   2. Environment variables (GATEWAYD_* prefix)
//   3. YAML config files (default: /etc/gatewayd/config.yaml)
//   4. Built-in defaults (lowest priority)
//
// Main Configuration Sections (§6 of the design):
//
//   1. Server
//      - port: Listen port (default 8081)
//      - tls_enabled / tls_cert_path / tls_key_path
//      - allowed_origins: permitted WebSocket CORS origins
//
//   2. Cache (tool-result cache, §4.1)
//      - max_entries (default 1000)
//      - ttl_seconds (default 300)
//
//   3. Breaker (circuit breaker, §4.2)
//      - failure_threshold (default 5)
//      - cooldown_seconds (default 30)
//
//   4. Coordinator (MCP coordinator, §4.3)
//      - health_interval_seconds (default 30)
//      - mcps: statically registered MCP descriptors
//
//   5. LLM (BYO-LLM, §4.6)
//      - provider / api_key / base_url / model
//      - tool_iteration_cap (default 10)
//      - default_daily_budget_usd
//
//   6. PromptGuard (§4.5)
//      - enabled / scorer_base_url / timeout_ms / bypass_roles
//      - behavior.window / warn_at / block_at
//
//   7. Flow (§4.7)
//      - default_ttl_hours (event log retention, advisory)
//
//   8. Conversation (§4.6, §9)
//      - idle_timeout_seconds
//
//   9. Database
//      - sqlite_path
//
//  10. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "text"
//
// Config struct contains all configuration fields.
type Config struct {
	Server struct {
		Port        int
		TLSEnabled  bool
		TLSCertPath string
		TLSKeyPath  string
		// AllowedOrigins is a list of origins permitted to open WebSocket
		// connections. Use ["*"] to allow any origin (development only).
		// If empty, defaults to ["http://localhost:3000", "http://localhost:5173"].
		AllowedOrigins []string
	}

	Cache struct {
		MaxEntries int
		TTLSeconds int
	}

	Breaker struct {
		FailureThreshold int
		CooldownSeconds  int
	}

	Coordinator struct {
		HealthIntervalSeconds int
		MCPs                  []MCPEndpoint
	}

	LLM struct {
		Provider              string
		APIKey                string
		BaseURL               string
		Model                 string
		ToolIterationCap      int
		DefaultDailyBudgetUSD float64
	}

	PromptGuard struct {
		Enabled       bool
		ScorerBaseURL string
		TimeoutMS     int
		Threshold     float64
		BypassRoles   []string
		Behavior      struct {
			Window  string // "message" | "session" | "day"
			WarnAt  int
			BlockAt int
		}
	}

	Flow struct {
		DefaultTTLHours int
	}

	Conversation struct {
		IdleTimeoutSeconds int
	}

	Database struct {
		SQLitePath string
	}

	Logging struct {
		Level  string
		Format string
	}

	GRPCAdmin struct {
		Enabled bool
		Port    int
	}
}

// MCPEndpoint is one statically configured MCP tool server registration.
type MCPEndpoint struct {
	ID      string
	Name    string
	BaseURL string
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources (selective settings).
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/gatewayd/config.yaml")
}
