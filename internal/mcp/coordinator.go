package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kubilitics/gatewayd/internal/cache"
	"github.com/kubilitics/gatewayd/internal/gwerrors"
	"github.com/kubilitics/gatewayd/internal/mcp/breaker"
	"go.uber.org/zap"
)

// sharedHTTPClient is reused across every MCP call so the coordinator never
// exhausts file descriptors under concurrent session load.
var sharedHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}

// Coordinator owns the MCP descriptor registry, the per-MCP circuit
// breakers, the tool-result cache, and periodic health probing.
type Coordinator struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor

	breakers *breaker.Registry
	cache    *cache.Cache
	client   *http.Client
	logger   *zap.Logger

	probeInterval time.Duration
	stopProbe     chan struct{}
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithHTTPClient overrides the shared pooled client (used by tests).
func WithHTTPClient(c *http.Client) Option {
	return func(co *Coordinator) { co.client = c }
}

// WithProbeInterval overrides the default health-probe interval.
func WithProbeInterval(d time.Duration) Option {
	return func(co *Coordinator) { co.probeInterval = d }
}

// New creates a Coordinator. cache and breakerCfg back the result cache and
// the per-MCP circuit breakers respectively.
func New(resultCache *cache.Cache, breakerCfg breaker.Config, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	co := &Coordinator{
		descriptors:   make(map[string]*Descriptor),
		breakers:      breaker.NewRegistry(breakerCfg),
		cache:         resultCache,
		client:        sharedHTTPClient,
		logger:        logger,
		probeInterval: 30 * time.Second,
		stopProbe:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// Register adds or replaces an MCP descriptor.
func (co *Coordinator) Register(d Descriptor) {
	co.mu.Lock()
	defer co.mu.Unlock()
	d.Healthy = true
	co.descriptors[d.ID] = &d
}

// Deregister removes an MCP descriptor from the registry.
func (co *Coordinator) Deregister(id string) {
	co.mu.Lock()
	defer co.mu.Unlock()
	delete(co.descriptors, id)
}

// ListTools returns the merged catalog of every registered, healthy MCP's
// tool schemas, keyed by MCP id.
func (co *Coordinator) ListTools(_ context.Context) map[string][]ToolSchema {
	co.mu.RLock()
	defer co.mu.RUnlock()
	out := make(map[string][]ToolSchema, len(co.descriptors))
	for id, d := range co.descriptors {
		out[id] = d.Tools
	}
	return out
}

// Descriptor returns the registered descriptor for an MCP id, if any.
func (co *Coordinator) Descriptor(id string) (Descriptor, bool) {
	co.mu.RLock()
	defer co.mu.RUnlock()
	d, ok := co.descriptors[id]
	if !ok {
		return Descriptor{}, false
	}
	return *d, true
}

// Invoke dispatches a tool call to the named MCP, honoring the circuit
// breaker and tool-result cache. It is the only path the chat engine and
// authz pipeline use to reach a remote MCP server.
func (co *Coordinator) Invoke(ctx context.Context, mcpID, toolName string, args map[string]interface{}) (InvocationResult, error) {
	d, ok := co.Descriptor(mcpID)
	if !ok {
		return InvocationResult{}, gwerrors.New(gwerrors.ToolError, fmt.Sprintf("unknown mcp %q", mcpID))
	}

	schema, ok := findTool(d.Tools, toolName)
	if !ok {
		return InvocationResult{}, gwerrors.New(gwerrors.ToolError, fmt.Sprintf("unknown tool %q on mcp %q", toolName, mcpID))
	}

	bypass := cache.Bypass(toolName, schema.NonIdempotent)
	key := cache.Fingerprint(mcpID, toolName, args)

	if !bypass && co.cache != nil {
		if v, found := co.cache.Get(ctx, key); found {
			return InvocationResult{ToolName: toolName, Output: v, CacheHit: true}, nil
		}
	}

	br := co.breakers.For(mcpID)
	if !br.Allow() {
		return InvocationResult{}, gwerrors.New(gwerrors.BreakerOpen, fmt.Sprintf("mcp %q circuit open", mcpID))
	}

	start := time.Now()
	out, err := co.dispatch(ctx, d, toolName, args)
	elapsed := time.Since(start)

	if err != nil {
		br.Failure()
		return InvocationResult{}, gwerrors.Wrap(gwerrors.TransportError, fmt.Sprintf("invoke %s.%s", mcpID, toolName), err)
	}
	br.Success()

	if !bypass && co.cache != nil {
		co.cache.Set(ctx, key, out)
	}

	return InvocationResult{ToolName: toolName, Output: out, Duration: elapsed}, nil
}

func (co *Coordinator) dispatch(ctx context.Context, d Descriptor, toolName string, args map[string]interface{}) (interface{}, error) {
	body, err := json.Marshal(map[string]interface{}{"tool": toolName, "arguments": args})
	if err != nil {
		return nil, err
	}

	url := strings.TrimSuffix(d.BaseURL, "/") + "/invoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := co.client
	if client == nil {
		client = sharedHTTPClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("mcp returned status %d: %s", resp.StatusCode, string(raw))
	}

	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		// Non-JSON bodies are returned as raw strings.
		return string(raw), nil
	}
	return out, nil
}

func findTool(tools []ToolSchema, name string) (ToolSchema, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolSchema{}, false
}

// StartHealthProbes launches the background goroutine that periodically
// probes every registered MCP's /health endpoint and updates its Healthy
// flag. It returns immediately; call Stop to end the loop.
func (co *Coordinator) StartHealthProbes(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(co.probeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-co.stopProbe:
				return
			case <-ticker.C:
				co.probeAll(ctx)
			}
		}
	}()
}

// Stop ends the health-probe loop.
func (co *Coordinator) Stop() {
	close(co.stopProbe)
}

func (co *Coordinator) probeAll(ctx context.Context) {
	co.mu.RLock()
	ids := make([]string, 0, len(co.descriptors))
	for id := range co.descriptors {
		ids = append(ids, id)
	}
	co.mu.RUnlock()

	for _, id := range ids {
		co.probeOne(ctx, id)
	}
}

func (co *Coordinator) probeOne(ctx context.Context, id string) {
	co.mu.RLock()
	d, ok := co.descriptors[id]
	co.mu.RUnlock()
	if !ok {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, strings.TrimSuffix(d.BaseURL, "/")+"/health", nil)
	healthy := false
	if err == nil {
		client := co.client
		if client == nil {
			client = sharedHTTPClient
		}
		resp, derr := client.Do(req)
		if derr == nil {
			healthy = resp.StatusCode == http.StatusOK
			resp.Body.Close()
		}
	}

	co.mu.Lock()
	if cur, ok := co.descriptors[id]; ok {
		cur.Healthy = healthy
		cur.LastProbed = time.Now()
	}
	co.mu.Unlock()

	if !healthy {
		co.logger.Warn("mcp health probe failed", zap.String("mcp_id", id))
	}
}

// BreakerSnapshot reports every known breaker's state, for health/ready
// endpoints.
func (co *Coordinator) BreakerSnapshot() map[string]breaker.State {
	return co.breakers.Snapshot()
}
