// Package openai implements embedding.Model on top of the OpenAI embeddings API.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"resty.dev/v3"

	"github.com/at-ishikawa/kikitori/internal/embedding"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
)

type Client struct {
	httpClient       *resty.Client
	model            string
	dimension        int
	maxRetryAttempts uint
}

var _ embedding.Model = (*Client)(nil)

func NewClient(apiKey, baseURL, model string, dimension int, retryAttempts uint) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetHeader("Authorization", "Bearer "+apiKey)
	client.SetHeader("Content-Type", "application/json")

	return &Client{
		httpClient:       client,
		model:            model,
		dimension:        dimension,
		maxRetryAttempts: retryAttempts,
	}
}

func (client *Client) Close() error {
	return client.httpClient.Close()
}

func (client *Client) Name() string {
	return "openai/" + client.model
}

func (client *Client) Dimension() int {
	return client.dimension
}

type EmbeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type EmbeddingResponse struct {
	Object string          `json:"object"`
	Data   []EmbeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  Usage           `json:"usage"`
}

type EmbeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	// Retry on network-related errors
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "connection reset") || strings.Contains(errStr, "EOF") {
		return true
	}
	// Retry on 5xx errors (server errors)
	if strings.Contains(errStr, "response error 5") {
		return true
	}
	// Retry on rate limiting (429)
	if strings.Contains(errStr, "response error 429") {
		return true
	}
	return false
}

// Encode implements the embedding.Model interface
func (client *Client) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var result [][]float32
	if err := retry.Do(
		func() error {
			vectors, err := client.encode(ctx, texts)
			if err != nil {
				if !isRetryableError(err) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			result = vectors
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(client.maxRetryAttempts+1),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			return retry.BackOffDelay(n, err, config)
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Default().Info("Retrying OpenAI embeddings call",
				"attempt", n+1,
				"inputs", len(texts),
				"lastError", err)
		}),
	); err != nil {
		return nil, err
	}
	return result, nil
}

func (client *Client) requestBody(texts []string) EmbeddingRequest {
	body := EmbeddingRequest{
		Model: client.model,
		Input: texts,
	}
	// Only the text-embedding-3 family accepts a reduced output dimension
	if strings.HasPrefix(client.model, "text-embedding-3") {
		body.Dimensions = client.dimension
	}
	return body
}

func (client *Client) encode(ctx context.Context, texts []string) ([][]float32, error) {
	requestBody := client.requestBody(texts)

	response, err := client.httpClient.R().
		SetContext(ctx).
		SetBody(requestBody).
		SetResult(&EmbeddingResponse{}).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("httpClient.Post > %w", err)
	}
	if response.IsError() {
		return nil, fmt.Errorf("response error %d: %s", response.StatusCode(), response.String())
	}

	responseBody, ok := response.Result().(*EmbeddingResponse)
	if !ok || responseBody == nil || len(responseBody.Data) == 0 {
		return nil, fmt.Errorf("empty response body or data: %s", response.String())
	}
	if len(responseBody.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(responseBody.Data), len(texts))
	}
	slog.Default().Debug("openai embeddings response",
		"model", responseBody.Model,
		"inputs", len(texts),
		"promptTokens", responseBody.Usage.PromptTokens,
	)

	data := responseBody.Data
	sort.SliceStable(data, func(i, j int) bool {
		return data[i].Index < data[j].Index
	})
	vectors := make([][]float32, len(data))
	for i, d := range data {
		if d.Index != i {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
