package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Port = 8081
	cfg.Server.TLSEnabled = false
	cfg.Server.TLSCertPath = ""
	cfg.Server.TLSKeyPath = ""
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

	// Cache defaults (tool-result cache, §4.1)
	cfg.Cache.MaxEntries = 1000
	cfg.Cache.TTLSeconds = 300

	// Breaker defaults (circuit breaker, §4.2)
	cfg.Breaker.FailureThreshold = 5
	cfg.Breaker.CooldownSeconds = 30

	// Coordinator defaults (MCP coordinator, §4.3)
	cfg.Coordinator.HealthIntervalSeconds = 30
	cfg.Coordinator.MCPs = nil

	// LLM defaults (BYO-LLM, §4.6)
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.APIKey = ""
	cfg.LLM.BaseURL = ""
	cfg.LLM.Model = "claude-3-5-sonnet-20241022"
	cfg.LLM.ToolIterationCap = 10
	cfg.LLM.DefaultDailyBudgetUSD = 5.0

	// PromptGuard defaults (§4.5)
	cfg.PromptGuard.Enabled = true
	cfg.PromptGuard.ScorerBaseURL = ""
	cfg.PromptGuard.TimeoutMS = 2000
	cfg.PromptGuard.Threshold = 0.5
	cfg.PromptGuard.BypassRoles = []string{}
	cfg.PromptGuard.Behavior.Window = "session"
	cfg.PromptGuard.Behavior.WarnAt = 2
	cfg.PromptGuard.Behavior.BlockAt = 5

	// Flow defaults (§4.7)
	cfg.Flow.DefaultTTLHours = 24

	// Conversation defaults (§4.6, §9)
	cfg.Conversation.IdleTimeoutSeconds = 300

	// Database defaults
	cfg.Database.SQLitePath = "/var/lib/gatewayd/gatewayd.db"

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	// gRPC admin defaults
	cfg.GRPCAdmin.Enabled = false
	cfg.GRPCAdmin.Port = 9090

	return cfg
}
