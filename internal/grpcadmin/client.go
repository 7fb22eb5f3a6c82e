package grpcadmin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kubilitics/gatewayd/pkg/contracts"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// ConnectionState mirrors the client's view of the underlying connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
	StateReconnecting ConnectionState = "RECONNECTING"
)

// reconnectPolicy controls the exponential backoff used between dial
// attempts after the connection drops.
type reconnectPolicy struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	maxAttempts  int // 0 = unlimited
}

var defaultReconnectPolicy = reconnectPolicy{
	initialDelay: 1 * time.Second,
	maxDelay:     30 * time.Second,
	multiplier:   2.0,
	maxAttempts:  0,
}

// Client is a thin gRPC client for the admin surface, used by operator
// tooling that prefers gRPC over the HTTP admin API. It monitors its own
// connectivity state and reconnects with backoff on failure.
type Client struct {
	address string
	conn    *grpc.ClientConn

	mu             sync.RWMutex
	state          ConnectionState
	reconnectCount int

	reconnect reconnectPolicy
	stopChan  chan struct{}
}

// NewClient creates a client for the admin gRPC address. Call Connect to
// dial.
func NewClient(address string) *Client {
	return &Client{
		address:   address,
		state:     StateDisconnected,
		reconnect: defaultReconnectPolicy,
		stopChan:  make(chan struct{}),
	}
}

// Connect dials the admin server and starts background connection
// monitoring.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return fmt.Errorf("already connected or connecting")
	}
	c.state = StateConnecting
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, c.address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("dial admin grpc: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	go c.monitor(ctx)
	return nil
}

// Close shuts down the connection and stops monitoring.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.stopChan:
	default:
		close(c.stopChan)
	}
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.state = StateDisconnected
	return err
}

// State returns the client's current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.Invoke(ctx, "/gatewayd.admin.v1.Admin/"+method, req, resp, grpc.CallContentSubtype(codecName))
}

// EnableMonitoring asks the admin server to start monitoring a user.
func (c *Client) EnableMonitoring(ctx context.Context, req *contracts.EnableMonitoringRequest) (*contracts.EnableMonitoringResponse, error) {
	resp := new(contracts.EnableMonitoringResponse)
	if err := c.invoke(ctx, "EnableMonitoring", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DisableMonitoring asks the admin server to stop monitoring a user.
func (c *Client) DisableMonitoring(ctx context.Context, req *contracts.DisableMonitoringRequest) (*contracts.HealthCheckResponse, error) {
	resp := new(contracts.HealthCheckResponse)
	if err := c.invoke(ctx, "DisableMonitoring", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListMonitored lists currently monitored users.
func (c *Client) ListMonitored(ctx context.Context) (*contracts.ListMonitoredResponse, error) {
	resp := new(contracts.ListMonitoredResponse)
	if err := c.invoke(ctx, "ListMonitored", &contracts.ListMonitoredRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// QueryFlows fetches the flow event tree for a session.
func (c *Client) QueryFlows(ctx context.Context, req *contracts.FlowQueryRequest) (*contracts.FlowQueryResponse, error) {
	resp := new(contracts.FlowQueryResponse)
	if err := c.invoke(ctx, "QueryFlows", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// HealthCheck pings the admin server.
func (c *Client) HealthCheck(ctx context.Context) (*contracts.HealthCheckResponse, error) {
	resp := new(contracts.HealthCheckResponse)
	if err := c.invoke(ctx, "HealthCheck", &contracts.HealthCheckRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// monitor watches connectivity state and reconnects with backoff on
// failure.
func (c *Client) monitor(ctx context.Context) {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		default:
		}

		changed := conn.WaitForStateChange(ctx, conn.GetState())
		if !changed {
			return
		}

		state := conn.GetState()
		if state == connectivity.TransientFailure || state == connectivity.Shutdown {
			c.reconnectWithBackoff(ctx)
			return
		}
	}
}

func (c *Client) reconnectWithBackoff(ctx context.Context) {
	c.mu.Lock()
	c.state = StateReconnecting
	c.mu.Unlock()

	delay := c.reconnect.initialDelay
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		default:
		}

		if c.reconnect.maxAttempts > 0 && attempt >= c.reconnect.maxAttempts {
			c.mu.Lock()
			c.state = StateDisconnected
			c.mu.Unlock()
			return
		}
		attempt++

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-c.stopChan:
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := c.Connect(ctx); err == nil {
			c.mu.Lock()
			c.reconnectCount++
			c.mu.Unlock()
			return
		}

		delay = time.Duration(float64(delay) * c.reconnect.multiplier)
		if delay > c.reconnect.maxDelay {
			delay = c.reconnect.maxDelay
		}
	}
}
