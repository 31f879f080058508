// Package vector stores and queries fragment embeddings in ChromaDB. Each
// namespace (repo_id:version_id) maps to its own collection, so a repository
// version is immutable once populated and re-ingestion overwrites the same
// record ids.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/repopilot/repopilot/internal/common"
)

// Record is one vector with its storage id and metadata payload.
type Record struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// SearchResult is one similarity hit as returned by the index.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]interface{}
}

// Store is the external vector-index collaborator.
type Store interface {
	Available() bool
	Upsert(ctx context.Context, namespace string, records []Record) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]SearchResult, error)
}

// Client talks to a ChromaDB server over its v1 HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	prefix     string

	mu          sync.RWMutex
	available   bool
	collections map[string]string
}

var (
	errNotFound = errors.New("resource not found")
	errConflict = errors.New("resource conflict")
)

// NewFromEnv builds a client from CHROMADB_* environment variables.
func NewFromEnv(ctx context.Context) *Client {
	return New(ctx, LoadConfig())
}

// New constructs a client and probes the server once. An unreachable server
// is not fatal; the client reports Available() == false and ingestion
// surfaces the condition as a storage failure.
func New(ctx context.Context, cfg Config) *Client {
	logger := common.Logger()
	client := &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     fmt.Sprintf("%s://%s:%s/api/v1", cfg.Scheme, cfg.Host, cfg.Port),
		apiKey:      cfg.APIKey,
		prefix:      cfg.CollectionPrefix,
		collections: make(map[string]string),
	}
	if err := client.health(ctx); err != nil {
		logger.Warn("vector: chromadb unreachable", "base", client.baseURL, "error", err)
		return client
	}
	client.mu.Lock()
	client.available = true
	client.mu.Unlock()
	logger.Info("vector: chromadb connection established", "base", client.baseURL)
	return client
}

func (c *Client) Available() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// Upsert writes records into the namespace's collection, creating it on
// first use. Record ids are caller-assigned, so repeating an upsert with the
// same ids is idempotent.
func (c *Client) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	collectionID, err := c.collectionFor(ctx, namespace)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(records))
	embeddings := make([][]float32, 0, len(records))
	metadatas := make([]map[string]interface{}, 0, len(records))
	documents := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
		embeddings = append(embeddings, record.Vector)
		metadatas = append(metadatas, record.Payload)
		if text, ok := record.Payload["text"].(string); ok {
			documents = append(documents, text)
		} else {
			documents = append(documents, "")
		}
	}
	payload := map[string]interface{}{
		"ids":        ids,
		"embeddings": embeddings,
		"metadatas":  metadatas,
		"documents":  documents,
	}
	endpoint := fmt.Sprintf("%s/collections/%s/upsert", c.baseURL, url.PathEscape(collectionID))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, nil); err != nil {
		if errors.Is(err, errNotFound) {
			// Older servers only expose /add, which also overwrites by id.
			fallback := fmt.Sprintf("%s/collections/%s/add", c.baseURL, url.PathEscape(collectionID))
			return c.doRequest(ctx, http.MethodPost, fallback, payload, nil)
		}
		return err
	}
	return nil
}

// Query runs a top-K similarity search in the namespace's collection. A
// namespace that was never populated yields no results, not an error.
func (c *Client) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 10
	}
	collectionID, err := c.lookupCollection(ctx, namespace)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	body := map[string]interface{}{
		"query_embeddings": [][]float32{vector},
		"n_results":        topK,
		"include":          []string{"metadatas", "documents", "distances"},
	}
	endpoint := fmt.Sprintf("%s/collections/%s/query", c.baseURL, url.PathEscape(collectionID))
	var resp struct {
		IDs       [][]string                 `json:"ids"`
		Distances [][]float64                `json:"distances"`
		Metadatas [][]map[string]interface{} `json:"metadatas"`
		Documents [][]string                 `json:"documents"`
	}
	if err := c.doRequest(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}
	results := make([]SearchResult, 0, len(resp.IDs[0]))
	for idx, id := range resp.IDs[0] {
		payload := map[string]interface{}{}
		if len(resp.Metadatas) > 0 && idx < len(resp.Metadatas[0]) {
			for k, v := range resp.Metadatas[0][idx] {
				payload[k] = v
			}
		}
		if len(resp.Documents) > 0 && idx < len(resp.Documents[0]) && resp.Documents[0][idx] != "" {
			if _, ok := payload["text"]; !ok {
				payload["text"] = resp.Documents[0][idx]
			}
		}
		var score float32
		if len(resp.Distances) > 0 && idx < len(resp.Distances[0]) {
			score = float32(1.0 / (1.0 + resp.Distances[0][idx]))
		}
		results = append(results, SearchResult{ID: id, Score: score, Payload: payload})
	}
	return results, nil
}

var collectionSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// collectionName maps a namespace onto a Chroma-safe collection name.
func (c *Client) collectionName(namespace string) string {
	name := collectionSanitizer.ReplaceAllString(namespace, "-")
	return strings.Trim(c.prefix+"-"+name, "-.")
}

// collectionFor resolves (creating if absent) the collection backing the
// namespace.
func (c *Client) collectionFor(ctx context.Context, namespace string) (string, error) {
	if id := c.cachedCollection(namespace); id != "" {
		return id, nil
	}
	name := c.collectionName(namespace)
	id, err := c.findCollection(ctx, name)
	if err != nil && !errors.Is(err, errNotFound) {
		return "", err
	}
	if id == "" {
		id, err = c.createCollection(ctx, name)
		if err != nil {
			return "", err
		}
	}
	c.mu.Lock()
	c.collections[namespace] = id
	c.mu.Unlock()
	return id, nil
}

// lookupCollection resolves the collection without creating it.
func (c *Client) lookupCollection(ctx context.Context, namespace string) (string, error) {
	if id := c.cachedCollection(namespace); id != "" {
		return id, nil
	}
	id, err := c.findCollection(ctx, c.collectionName(namespace))
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errNotFound
	}
	c.mu.Lock()
	c.collections[namespace] = id
	c.mu.Unlock()
	return id, nil
}

func (c *Client) cachedCollection(namespace string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collections[namespace]
}

func (c *Client) findCollection(ctx context.Context, name string) (string, error) {
	endpoint := fmt.Sprintf("%s/collections", c.baseURL)
	var collections []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &collections); err != nil {
		// Some server builds wrap the listing in an object.
		var wrapped struct {
			Collections []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"collections"`
		}
		if err2 := c.doRequest(ctx, http.MethodGet, endpoint, nil, &wrapped); err2 != nil {
			return "", err
		}
		collections = wrapped.Collections
	}
	for _, col := range collections {
		if strings.EqualFold(col.Name, name) {
			return col.ID, nil
		}
	}
	return "", nil
}

func (c *Client) createCollection(ctx context.Context, name string) (string, error) {
	endpoint := fmt.Sprintf("%s/collections", c.baseURL)
	payload := map[string]interface{}{"name": name, "get_or_create": true}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, &resp); err != nil {
		if errors.Is(err, errConflict) {
			return c.findCollection(ctx, name)
		}
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) health(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, c.baseURL+"/heartbeat", nil, nil)
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusConflict:
		return errConflict
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chromadb %s %s: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ Store = (*Client)(nil)
