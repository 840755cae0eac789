package ensemble

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mchmarny/veracity/pkg/feature"
	"github.com/mchmarny/veracity/pkg/net"
	"github.com/mchmarny/veracity/pkg/verdict"
)

// engineResponse is the wire shape every external engine replies with.
type engineResponse struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// HTTPEngine adapts a remote analysis model to the Engine interface: it
// POSTs the intake document as JSON and reads back a label and score.
type HTTPEngine struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPEngine builds the adapter. A non-empty token turns on bearer
// authentication for every call.
func NewHTTPEngine(ctx context.Context, name, url, token string) (*HTTPEngine, error) {
	if name == "" {
		return nil, fmt.Errorf("engine name is required")
	}
	if url == "" {
		return nil, fmt.Errorf("engine %s: url is required", name)
	}

	var client *http.Client
	if token != "" {
		client = net.GetOAuthClient(ctx, token)
	} else {
		var err error
		if client, err = net.GetHTTPClient(); err != nil {
			return nil, fmt.Errorf("engine %s: %w", name, err)
		}
	}

	return &HTTPEngine{name: name, url: url, client: client}, nil
}

// Name identifies the engine in reasoning and metrics.
func (e *HTTPEngine) Name() string {
	return e.name
}

// Check submits the document and decodes the engine's opinion. Transport
// failures and malformed replies surface as errors; the arbiter turns
// them into abstentions.
func (e *HTTPEngine) Check(ctx context.Context, fs feature.Set, p feature.Profile) (*EngineVerdict, error) {
	payload := feature.Document{
		Features:   fs.Values(),
		Confidence: fs.Confidences(),
		Profile:    p,
	}

	start := time.Now()
	var resp engineResponse
	if err := net.PostJSON(ctx, e.client, e.url, payload, &resp); err != nil {
		return nil, fmt.Errorf("engine %s check failed: %w", e.name, err)
	}

	label := verdict.Label(strings.ToLower(strings.TrimSpace(resp.Label)))
	if !label.Valid() {
		return nil, fmt.Errorf("engine %s returned unknown label %q", e.name, resp.Label)
	}

	return &EngineVerdict{
		Engine:  e.name,
		Label:   label,
		Score:   resp.Score,
		Elapsed: time.Since(start),
	}, nil
}

// Health probes the engine's health endpoint.
func (e *HTTPEngine) Health(ctx context.Context) error {
	var out map[string]string
	url := strings.TrimSuffix(e.url, "/") + "/healthz"
	if err := net.GetJSON(ctx, e.client, url, &out); err != nil {
		return fmt.Errorf("engine %s health check failed: %w", e.name, err)
	}
	return nil
}
