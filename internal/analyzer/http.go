package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chatsense/chatsense/internal/domain"
)

// Client is an HTTP client for the analysis sidecar service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// ClientConfig holds configuration for the analyzer client.
type ClientConfig struct {
	Address        string
	RequestTimeout time.Duration
}

// NewClient creates a client for the analysis sidecar at addr. It probes
// the service's health endpoint so bad endpoints fail fast at startup;
// an unreachable service is an error the caller may choose to tolerate.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}

	base := strings.TrimRight(cfg.Address, "/")
	if base == "" {
		return nil, fmt.Errorf("analyzer address is empty")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logger,
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if !c.Ready(probeCtx) {
		return nil, fmt.Errorf("analyzer at %s not ready: %w", base, ErrUnavailable)
	}

	logger.Info("Connected to analyzer service", "address", base)
	return c, nil
}

type analyzeRequest struct {
	Text string `json:"text"`
}

// Analyze posts the text to the sidecar's /analyze endpoint.
func (c *Client) Analyze(ctx context.Context, text string) (*domain.Analysis, error) {
	body, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyze request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close analyze response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("analyze request: unexpected status %d", resp.StatusCode)
	}

	var analysis domain.Analysis
	if err := json.NewDecoder(resp.Body).Decode(&analysis); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}

	if analysis.EmotionScores == nil {
		analysis.EmotionScores = map[string]float64{}
	}
	if analysis.Entities == nil {
		analysis.Entities = []domain.Entity{}
	}
	if analysis.AspectSentiment == nil {
		analysis.AspectSentiment = map[string]string{}
	}

	return &analysis, nil
}

type healthResponse struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"models_loaded"`
}

// Ready probes the sidecar's /health endpoint.
func (c *Client) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("analyzer health probe failed", "error", err)
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.ModelsLoaded
}
