package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/interceptors"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/microplan"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/tracing"
)

// Caller executes one connector invocation and returns its raw payload.
type Caller interface {
	Call(ctx context.Context, connector string, params map[string]interface{}, target microplan.Target) (map[string]interface{}, error)
}

type gatewayRequest struct {
	Params map[string]interface{} `json:"params"`
	Target microplan.Target       `json:"target"`
}

// GatewayClient calls the connector gateway over HTTP, one breaker per
// connector so a failing provider does not trip the others.
type GatewayClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu       sync.Mutex
	breakers map[string]*circuitbreaker.HTTPWrapper
}

// NewGatewayClient targets baseURL (e.g. http://connector-gateway:8010).
func NewGatewayClient(baseURL string, timeout time.Duration, logger *zap.Logger) *GatewayClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatewayClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout, Transport: interceptors.NewActivityHeaders(nil)},
		logger:   logger,
		breakers: make(map[string]*circuitbreaker.HTTPWrapper),
	}
}

func (g *GatewayClient) breaker(connector string) *circuitbreaker.HTTPWrapper {
	g.mu.Lock()
	defer g.mu.Unlock()
	if w, ok := g.breakers[connector]; ok {
		return w
	}
	w := circuitbreaker.NewHTTPWrapper(g.client, "connector-"+connector, "connector-gateway",
		circuitbreaker.ConnectorSettings(connector), g.logger)
	g.breakers[connector] = w
	return w
}

// Call posts params to /connectors/{connector}/run.
func (g *GatewayClient) Call(ctx context.Context, connector string, params map[string]interface{}, target microplan.Target) (map[string]interface{}, error) {
	body, err := json.Marshal(gatewayRequest{Params: params, Target: target})
	if err != nil {
		return nil, fmt.Errorf("failed to encode connector request: %w", err)
	}
	url := fmt.Sprintf("%s/connectors/%s/run", g.baseURL, connector)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build connector request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := g.breaker(connector).Do(req)
	if err != nil {
		return nil, fmt.Errorf("connector %s request failed: %w", connector, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read connector %s response: %w", connector, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("connector %s returned %d: %s", connector, resp.StatusCode, truncate(string(raw), 200))
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode connector %s response: %w", connector, err)
	}
	return payload, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
