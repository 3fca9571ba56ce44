package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Endpoint paths on the model server.
const (
	PathEncode       = "/v1/layoutlm/encode"
	PathHiddenStates = "/v1/layoutlm/hidden-states"
	PathOutputs      = "/v1/layoutlmv2/outputs"
)

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client calls the model server that runs tokenization and forward passes.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *Client) Encode(ctx context.Context, req EncodeRequest) (*EncodeResponse, error) {
	var out EncodeResponse
	if err := c.post(ctx, PathEncode, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) HiddenStates(ctx context.Context, req HiddenStatesRequest) (*HiddenStatesResponse, error) {
	var out HiddenStatesResponse
	if err := c.post(ctx, PathHiddenStates, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Outputs(ctx context.Context, req OutputsRequest) (*OutputsResponse, error) {
	var out OutputsResponse
	if err := c.post(ctx, PathOutputs, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var headers map[string]string
	if c.token != "" {
		headers = map[string]string{"Authorization": "Bearer " + c.token}
	}
	raw, _, err := SendJSON(ctx, c.http, c.baseURL+path, body, headers, c.logger)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("POST %s: decode response: %w", path, err)
	}
	return nil
}
