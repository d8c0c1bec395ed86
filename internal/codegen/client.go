package codegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type httpClient struct {
	provider string
	baseURL  string
	apiKey   string
	model    string
	client   *http.Client
}

func newHTTPClient(provider, defaultModel string, cfg ClientConfig) (httpClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return httpClient{}, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return httpClient{}, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return httpClient{
		provider: provider,
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// postJSON sends payload and decodes a 2xx response into out. Every failure
// is returned as a *GenerationError.
func (c httpClient) postJSON(ctx context.Context, url string, headers map[string]string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &GenerationError{Provider: c.provider, Reason: ReasonTransport, Err: fmt.Errorf("marshal payload: %w", err)}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &GenerationError{Provider: c.provider, Reason: ReasonTransport, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return transportError(c.provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(c.provider, fmt.Errorf("read response body: %w", err))
	}
	if resp.StatusCode >= 300 {
		return statusError(c.provider, resp.StatusCode, rawRespBody)
	}
	if err := json.Unmarshal(rawRespBody, out); err != nil {
		return &GenerationError{Provider: c.provider, Reason: ReasonDecode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
