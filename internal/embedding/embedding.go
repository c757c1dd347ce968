// Package embedding provides a pluggable interface for text embedding
// providers.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aurorahq/echomem/internal/chunker"
)

// Result pairs an embedding vector with the chunk that produced it.
type Result struct {
	Chunk  chunker.Chunk
	Vector []float32
}

// Embedder generates embedding vectors for chunks in batches. A count
// mismatch between chunks and vectors is a contract violation, not a
// retryable condition; implementations surface it as an error.
type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []chunker.Chunk) ([]Result, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dims() int
	Model() string
}

// Options configures the HTTP embedding client.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dims       int
	BatchSize  int
	MaxRetries int
}

// Client is an OpenAI-compatible embedding API client with batching and
// exponential backoff on rate limits and server errors.
type Client struct {
	opts   Options
	client *http.Client
}

// NewClient creates an embedding client. Zero option fields get defaults.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-3-small"
	}
	if opts.Dims == 0 {
		opts.Dims = 1536
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	return &Client{
		opts:   opts,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedChunks embeds all chunks with non-empty normalized text, batching
// requests at the configured batch size.
func (c *Client) EmbedChunks(ctx context.Context, chunks []chunker.Chunk) ([]Result, error) {
	var results []Result
	var batch []chunker.Chunk
	for _, chunk := range chunks {
		if chunk.NormalizedText == "" {
			continue
		}
		batch = append(batch, chunk)
		if len(batch) >= c.opts.BatchSize {
			r, err := c.embedBatch(ctx, batch)
			if err != nil {
				return nil, err
			}
			results = append(results, r...)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		r, err := c.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		results = append(results, r...)
	}
	return results, nil
}

// EmbedText embeds a single string, used for recall queries.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	results, err := c.embedBatch(ctx, []chunker.Chunk{{NormalizedText: text}})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return results[0].Vector, nil
}

func (c *Client) Dims() int     { return c.opts.Dims }
func (c *Client) Model() string { return c.opts.Model }

func (c *Client) embedBatch(ctx context.Context, batch []chunker.Chunk) ([]Result, error) {
	inputs := make([]string, len(batch))
	for i, chunk := range batch {
		inputs[i] = chunk.NormalizedText
	}
	body, _ := json.Marshal(embedRequest{Input: inputs, Model: c.opts.Model})

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		resp, err := c.doRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusOK {
			var decoded embedResponse
			err := json.NewDecoder(resp.Body).Decode(&decoded)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("decode embedding response: %w", err)
			}
			if len(decoded.Data) != len(batch) {
				return nil, fmt.Errorf("embedding response size mismatch: %d vectors for %d chunks", len(decoded.Data), len(batch))
			}
			results := make([]Result, len(batch))
			for i, chunk := range batch {
				results[i] = Result{Chunk: chunk, Vector: decoded.Data[i].Embedding}
			}
			return results, nil
		}

		msg, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("embedding error %d: %s", resp.StatusCode, string(msg))
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return nil, lastErr
		}
		if attempt < c.opts.MaxRetries {
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	return resp, nil
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<(attempt-1)) * 1500 * time.Millisecond
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
