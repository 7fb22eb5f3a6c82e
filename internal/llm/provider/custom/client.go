package custom

import "context"

// Package custom provides custom OpenAI-compatible provider implementation for LLM adapter.
//
// Responsibilities:
//   - Implement LLM adapter interface for any OpenAI-compatible API endpoint
//   - Support self-hosted models, vLLM, LocalAI, LM Studio, and other compatible services
//   - Handle OpenAI-format chat completions API calls
//   - Support function calling (if provider supports it)
//   - Implement streaming responses
//   - Approximate token counting (provider-dependent)
//   - Cost tracking (configurable or zero)
//   - Error handling and connection management
//   - Flexible configuration for custom endpoints
//
// Supported Services:
//   - vLLM: High-performance inference serving
//   - LocalAI: Self-hosted, privacy-focused
//   - LM Studio: GUI-based local model serving
//   - Text Generation WebUI: Browser-based model interface
//   - Ollama with compatible endpoint (already has dedicated provider, but this is fallback)
//   - Any OpenAI-compatible API
//
// Configuration:
//   - CUSTOM_BASE_URL: Required. Base URL to custom endpoint (e.g., http://localhost:8000)
//   - CUSTOM_MODEL: Required. Model name or ID
//   - CUSTOM_API_KEY: Optional. API key if provider requires authentication
//   - CUSTOM_TEMPERATURE: Optional. Sampling temperature
//   - CUSTOM_MAX_TOKENS: Optional. Maximum tokens in response
//   - CUSTOM_COST_PER_1K_INPUT: Optional. Input cost per 1000 tokens (0 if running locally)
//   - CUSTOM_COST_PER_1K_OUTPUT: Optional. Output cost per 1000 tokens (0 if running locally)
//   - CUSTOM_SUPPORTS_FUNCTION_CALLING: Optional. Whether provider supports function calling
//
// Token Counting:
//   - Provider-dependent (some support token counting endpoints, some don't)
//   - Fallback to approximate char-to-token ratio if not available
//   - Can be configured in custom cost settings
//
// OpenAI API Compatibility Requirements:
//   - Endpoint: POST /v1/chat/completions
//   - Request format matches OpenAI chat completions API
//   - Response format matches OpenAI response schema
//   - Function calling support (if enabled)
//
// Integration Points:
//   - LLM Adapter: Implements adapter interface
//   - Budget Tracker: Reports token usage and costs
//   - Reasoning Engine: Calls Complete/CompleteStream
//   - MCP Server: Receives tool calls from LLM (if supported)

// CustomClient implements the LLM adapter interface for OpenAI-compatible endpoints.
type CustomClient struct {
	// baseURL is the base URL to the custom provider
	baseURL string

	// model is the model name/ID at the provider
	model string

	// apiKey is optional API key for authentication
	apiKey string

	// temperature is the sampling temperature
	temperature float32

	// maxTokens is the maximum tokens in response
	maxTokens int

	// costPerKInput is the cost per 1000 input tokens (0 if local)
	costPerKInput float64

	// costPerKOutput is the cost per 1000 output tokens (0 if local)
	costPerKOutput float64

	// supportsFunctionCalling indicates if provider supports function calling
	supportsFunctionCalling bool
}

// NewCustomClient creates a new custom provider client with configuration.
func NewCustomClient() *CustomClient {
	// Load configuration from env vars and files
	// Verify endpoint is reachable
	// Determine capabilities via API probe
	// Create HTTP client with optional authentication
	return nil
}

// Complete implements LLMAdapter.Complete for custom OpenAI-compatible endpoint.
func (c *CustomClient) Complete(ctx context.Context, messages []interface{}, tools []interface{}) (string, []interface{}, error) {
	// Build OpenAI-format chat completion request
	// Handle function_calling format for tools (if supported)
	// Call custom endpoint
	// Parse response (text + optional function_calls)
	// Track tokens and costs
	return "", nil, nil
}

// CompleteStream implements LLMAdapter.CompleteStream for custom endpoint.
func (c *CustomClient) CompleteStream(ctx context.Context, messages []interface{}, tools []interface{}) (chan string, chan interface{}, error) {
	// Build OpenAI-format chat completion request with stream=true
	// Set up SSE stream parsing
	// Return channels for tokens and tool calls
	// Handle backpressure and context cancellation
	return nil, nil, nil
}

// CountTokens estimates token count (provider-dependent).
func (c *CustomClient) CountTokens(ctx context.Context, messages []interface{}, tools []interface{}) (int, error) {
	// Try to call provider's token counting endpoint (if available)
	// Fallback to char-to-token approximation (1 token ≈ 4 chars)
	// Add overhead for tool definitions
	// Return estimated count
	return 0, nil
}

// GetCapabilities probes and returns custom provider capabilities.
func (c *CustomClient) GetCapabilities(ctx context.Context) (interface{}, error) {
	// Return capabilities map from configuration
	// streaming: true (most compatible providers support this)
	// function_calling: from config or detection
	// max_tokens: from config
	// costs: from config (0 if running locally)
	return nil, nil
}

// ValidateToolCall validates tool call against schema.
func (c *CustomClient) ValidateToolCall(ctx context.Context, toolName string, args interface{}) error {
	// Validate tool_name matches registered tools
	// Validate function arguments against schema
	return nil
}

// NormalizeToolCall converts custom provider format to standard format.
func (c *CustomClient) NormalizeToolCall(ctx context.Context, toolCall interface{}) (map[string]interface{}, error) {
	// If following OpenAI format, extract function call details
	// Convert arguments from JSON string to map
	// Return normalized format
	return nil, nil
}
