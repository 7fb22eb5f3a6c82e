package openai

import "context"

// Package openai provides OpenAI provider implementation for LLM adapter.
//
// Responsibilities:
//   - Implement LLM adapter interface for OpenAI API
//   - Support GPT-4, GPT-4o, GPT-3.5-turbo models
//   - Handle OpenAI chat completions API calls
//   - Support function calling (tool use) via OpenAI format
//   - Implement streaming responses
//   - Token counting via tiktoken (cl100k_base tokenizer for GPT-4)
//   - Cost tracking per request
//   - Error handling and rate limit detection
//   - Model-specific configuration (temperature, top_p, frequency_penalty, etc.)
//
// Supported Models:
//   - gpt-4: 8k context, excellent reasoning, high cost
//   - gpt-4-turbo: 128k context, faster, lower cost
//   - gpt-4o: Latest multimodal, fast, moderate cost
//   - gpt-3.5-turbo: Fast, low cost, suitable for simple tasks
//
// Configuration:
//   - OPENAI_API_KEY: Required. API key from OpenAI
//   - OPENAI_MODEL: Required. Model ID (defaults to gpt-4)
//   - OPENAI_TEMPERATURE: Optional. Sampling temperature (0.0-2.0, default 0.7)
//   - OPENAI_TOP_P: Optional. Nucleus sampling parameter (0.0-1.0)
//   - OPENAI_MAX_TOKENS: Optional. Maximum tokens in response
//   - OPENAI_BASE_URL: Optional. Base URL (for proxies)
//
// Cost Tracking (as of knowledge cutoff):
//   gpt-4:         $0.03 per 1K input, $0.06 per 1K output
//   gpt-4-turbo:   $0.01 per 1K input, $0.03 per 1K output
//   gpt-4o:        $0.005 per 1K input, $0.015 per 1K output
//   gpt-3.5-turbo: $0.0005 per 1K input, $0.0015 per 1K output
//
// Token Counting:
//   - Uses cl100k_base tokenizer (same as GPT models use internally)
//   - Adds overhead for function calling (~20 tokens per tool)
//   - Accurate for message content and function definitions
//
// Integration Points:
//   - LLM Adapter: Implements adapter interface
//   - Budget Tracker: Reports token usage and costs
//   - Reasoning Engine: Calls Complete/CompleteStream
//   - MCP Server: Receives tool calls from LLM

// OpenAIClient implements the LLM adapter interface for OpenAI.
type OpenAIClient struct {
	// apiKey is the OpenAI API key
	apiKey string

	// model is the OpenAI model to use (gpt-4, gpt-4-turbo, gpt-4o, gpt-3.5-turbo)
	model string

	// temperature is the sampling temperature (0.0-2.0)
	temperature float32

	// maxTokens is the maximum tokens in response
	maxTokens int

	// tokenizer is the tiktoken tokenizer for this model
	tokenizer interface{}
}

// NewOpenAIClient creates a new OpenAI client with configuration.
func NewOpenAIClient() *OpenAIClient {
	// Load configuration from env vars and files
	// Initialize tiktoken tokenizer
	// Create HTTP client with API key headers
	return nil
}

// Complete implements LLMAdapter.Complete for OpenAI API.
func (c *OpenAIClient) Complete(ctx context.Context, messages []interface{}, tools []interface{}) (string, []interface{}, error) {
	// Build OpenAI chat completion request
	// Handle function_calling format for tools
	// Call OpenAI API
	// Parse response (text + function_calls)
	// Track tokens and costs
	return "", nil, nil
}

// CompleteStream implements LLMAdapter.CompleteStream for OpenAI API.
func (c *OpenAIClient) CompleteStream(ctx context.Context, messages []interface{}, tools []interface{}) (chan string, chan interface{}, error) {
	// Build OpenAI chat completion request with stream=true
	// Set up SSE stream parsing
	// Return channels for tokens and tool_calls
	// Handle backpressure and context cancellation
	return nil, nil, nil
}

// CountTokens estimates token count using tiktoken tokenizer.
func (c *OpenAIClient) CountTokens(ctx context.Context, messages []interface{}, tools []interface{}) (int, error) {
	// Use tiktoken tokenizer to count tokens
	// Add overhead for function_calling format (~20 per tool)
	// Sum tokens for all messages and tools
	return 0, nil
}

// GetCapabilities returns OpenAI model capabilities.
func (c *OpenAIClient) GetCapabilities(ctx context.Context) (interface{}, error) {
	// Return capabilities map with model-specific info
	// streaming: true
	// function_calling: true
	// vision: true (for gpt-4-vision and gpt-4o)
	// max_tokens: model-dependent (8192 for gpt-4, 128000 for gpt-4-turbo)
	// costs: per-token costs for tracking
	return nil, nil
}

// ValidateToolCall validates tool call against schema.
func (c *OpenAIClient) ValidateToolCall(ctx context.Context, toolName string, args interface{}) error {
	// Validate tool_name matches registered tools
	// Validate function arguments against schema
	return nil
}

// NormalizeToolCall converts OpenAI tool call format to standard format.
func (c *OpenAIClient) NormalizeToolCall(ctx context.Context, toolCall interface{}) (map[string]interface{}, error) {
	// Extract tool_name and arguments from OpenAI format
	// Convert arguments from JSON string to map
	return nil, nil
}
