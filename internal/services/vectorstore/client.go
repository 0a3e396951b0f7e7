package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tubeindex/internal/config"
	"tubeindex/internal/services"
)

const defaultHTTPTimeout = 60 * time.Second

// Vector is one upsert payload entry. ID is the chunk content hash, so
// re-upserting unchanged chunks is idempotent.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Match is one nearest-neighbor query result.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Stats summarizes the index contents.
type Stats struct {
	TotalVectors     int
	NamespaceVectors int
	Dimension        int
}

// Client talks to a Pinecone-compatible vector index over its REST data
// plane.
type Client struct {
	cfg        config.VectorStore
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a vector store client from the configured settings.
func NewClient(cfg config.VectorStore, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Namespace returns the configured index namespace.
func (c *Client) Namespace() string {
	return c.cfg.Namespace
}

// BatchSize returns the maximum vectors per upsert call.
func (c *Client) BatchSize() int {
	return c.cfg.BatchSize
}

// Upsert inserts or overwrites vectors by id. Calling it twice with the
// same ids leaves the index count unchanged.
func (c *Client) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return services.Wrap(services.ErrValidation, "upload", "upsert", "no vectors to upsert", nil)
	}
	if c.cfg.BatchSize > 0 && len(vectors) > c.cfg.BatchSize {
		return services.Wrap(services.ErrValidation, "upload", "upsert",
			fmt.Sprintf("batch of %d exceeds limit %d", len(vectors), c.cfg.BatchSize), nil)
	}
	for i, vector := range vectors {
		if vector.ID == "" {
			return services.Wrap(services.ErrValidation, "upload", "upsert",
				fmt.Sprintf("vector %d has no id", i), nil)
		}
		if len(vector.Values) == 0 {
			return services.Wrap(services.ErrValidation, "upload", "upsert",
				fmt.Sprintf("vector %s has no values", vector.ID), nil)
		}
	}
	payload := map[string]any{
		"vectors":   vectors,
		"namespace": c.cfg.Namespace,
	}
	var response struct {
		UpsertedCount int `json:"upsertedCount"`
	}
	return c.post(ctx, "/vectors/upsert", payload, &response)
}

// ExistingIDs fetches the subset of ids already present in the index.
func (c *Client) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	// The fetch endpoint is GET with repeated ids parameters; keep each
	// request within the configured batch size.
	batch := c.cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	for start := 0; start < len(ids); start += batch {
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}
		query := url.Values{}
		for _, id := range ids[start:end] {
			query.Add("ids", id)
		}
		query.Set("namespace", c.cfg.Namespace)

		var response struct {
			Vectors map[string]struct {
				ID string `json:"id"`
			} `json:"vectors"`
		}
		if err := c.get(ctx, "/vectors/fetch?"+query.Encode(), &response); err != nil {
			return nil, err
		}
		for id := range response.Vectors {
			existing[id] = true
		}
	}
	return existing, nil
}

// Query runs a nearest-neighbor search and returns ranked matches.
func (c *Client) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, services.Wrap(services.ErrValidation, "search", "query", "empty query vector", nil)
	}
	if topK <= 0 {
		topK = 10
	}
	payload := map[string]any{
		"vector":          vector,
		"topK":            topK,
		"namespace":       c.cfg.Namespace,
		"includeMetadata": true,
	}
	var response struct {
		Matches []Match `json:"matches"`
	}
	if err := c.post(ctx, "/query", payload, &response); err != nil {
		return nil, err
	}
	return response.Matches, nil
}

// DescribeStats returns index-wide and namespace vector counts.
func (c *Client) DescribeStats(ctx context.Context) (Stats, error) {
	var response struct {
		Dimension        int `json:"dimension"`
		TotalVectorCount int `json:"totalVectorCount"`
		Namespaces       map[string]struct {
			VectorCount int `json:"vectorCount"`
		} `json:"namespaces"`
	}
	if err := c.post(ctx, "/describe_index_stats", map[string]any{}, &response); err != nil {
		return Stats{}, err
	}
	stats := Stats{
		TotalVectors: response.TotalVectorCount,
		Dimension:    response.Dimension,
	}
	if ns, ok := response.Namespaces[c.cfg.Namespace]; ok {
		stats.NamespaceVectors = ns.VectorCount
	}
	return stats, nil
}

// HealthCheck verifies connection settings and index reachability.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "upload", "health", "api key required", nil)
	}
	if c.cfg.IndexHost == "" {
		return services.Wrap(services.ErrConfiguration, "upload", "health", "index host required", nil)
	}
	_, err := c.DescribeStats(ctx)
	return err
}

func (c *Client) post(ctx context.Context, path string, payload, target any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("vector store: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("vector store: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, target)
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return fmt.Errorf("vector store: new request: %w", err)
	}
	return c.send(req, target)
}

func (c *Client) endpoint(path string) string {
	host := c.cfg.IndexHost
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return host + path
}

func (c *Client) send(req *http.Request, target any) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "upload", "request", "api key required", nil)
	}
	req.Header.Set("Api-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return services.Wrap(services.ErrTransient, "upload", "request", "", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "upload", "request", "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return classifyStatus(resp.StatusCode, string(body))
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return services.Wrap(services.ErrValidation, "upload", "request", "decode response", err)
	}
	return nil
}

func classifyStatus(status int, body string) error {
	detail := fmt.Sprintf("http %d: %s", status, strings.TrimSpace(body))
	switch {
	case status == http.StatusTooManyRequests:
		return services.Wrap(services.ErrRateLimit, "upload", "request", detail, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "upload", "request", detail, nil)
	case status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "upload", "request", detail, nil)
	default:
		return services.Wrap(services.ErrValidation, "upload", "request", detail, nil)
	}
}
