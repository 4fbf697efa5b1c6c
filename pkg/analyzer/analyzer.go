// Package analyzer asks an external service to explain a failed rollout's logs.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/wharf/pkg/metrics"
)

// ErrEmptyAnalysis is returned when the service answers without text
var ErrEmptyAnalysis = errors.New("analyzer returned no analysis")

// maxLogBytes bounds the log text sent for analysis
const maxLogBytes = 64 * 1024

type analyzeRequest struct {
	Log string `json:"log"`
}

type analyzeResponse struct {
	Analysis string `json:"analysis"`
}

// Client calls a log analysis endpoint
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// New creates a client for endpoint. apiKey is sent as a bearer token when set.
func New(endpoint, apiKey string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

// AnalyzeErrorLog returns the service's explanation of text
func (c *Client) AnalyzeErrorLog(ctx context.Context, text string) (string, error) {
	if len(text) > maxLogBytes {
		text = text[len(text)-maxLogBytes:]
	}

	body, err := json.Marshal(analyzeRequest{Log: text})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.AnalyzerRequests.WithLabelValues("error").Inc()
		return "", fmt.Errorf("analyzer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.AnalyzerRequests.WithLabelValues("rejected").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("analyzer returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.AnalyzerRequests.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to decode analysis: %w", err)
	}
	if strings.TrimSpace(out.Analysis) == "" {
		metrics.AnalyzerRequests.WithLabelValues("empty").Inc()
		return "", ErrEmptyAnalysis
	}

	metrics.AnalyzerRequests.WithLabelValues("ok").Inc()
	return out.Analysis, nil
}
