package suggest

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

	"github.com/anonify/anonify/pkg/config"
)

// Generator produces raw text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// InferenceClient calls a hosted text-generation endpoint that speaks the
// Hugging Face inference API.
type InferenceClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewInferenceClient targets baseURL/model.
func NewInferenceClient(baseURL, model, apiKey string, timeout time.Duration) *InferenceClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &InferenceClient{
		endpoint:   strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(model, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FromConfig returns nil when no API key is configured.
func FromConfig(cfg config.APIConfig) Generator {
	if strings.TrimSpace(cfg.SuggestAPIKey) == "" {
		return nil
	}
	return NewInferenceClient(cfg.SuggestAPIURL, cfg.SuggestModel, cfg.SuggestAPIKey, cfg.SuggestTimeout)
}

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
}

type inferenceParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	ReturnFullText bool    `json:"return_full_text"`
}

// Generate posts the prompt and returns the first generated text.
func (c *InferenceClient) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(inferenceRequest{
		Inputs:     prompt,
		Parameters: inferenceParameters{MaxNewTokens: 200, Temperature: 0.9},
	})
	if err != nil {
		return "", fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("inference request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out) == 0 || strings.TrimSpace(out[0].GeneratedText) == "" {
		return "", errors.New("inference returned no text")
	}
	return out[0].GeneratedText, nil
}
