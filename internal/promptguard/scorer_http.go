package promptguard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPScorerClient classifies messages by POSTing to an external scorer
// service. Pooled client mirrors the MCP coordinator's shared transport.
type HTTPScorerClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPScorerClient builds a scorer client against baseURL (expects a
// POST {baseURL}/classify endpoint).
func NewHTTPScorerClient(baseURL string, client *http.Client) *HTTPScorerClient {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPScorerClient{baseURL: baseURL, client: client}
}

type classifyRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
}

type classifyResponse struct {
	Safe   bool    `json:"safe"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Classify implements ScorerClient.
func (c *HTTPScorerClient) Classify(ctx context.Context, req Request) (Verdict, error) {
	body, err := json.Marshal(classifyRequest{RequestID: req.ID, UserID: req.UserID, Message: req.Message})
	if err != nil {
		return Verdict{}, fmt.Errorf("marshal classify request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("build classify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Verdict{}, fmt.Errorf("classify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("classify request returned status %d", resp.StatusCode)
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Verdict{}, fmt.Errorf("decode classify response: %w", err)
	}
	return Verdict{Safe: out.Safe, Score: out.Score, Reason: out.Reason}, nil
}
