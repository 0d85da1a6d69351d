// Package search exports the canonical collection to Elasticsearch so items
// can be queried by name, brand, or description without touching the output
// files.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/mostafazog/mro-harvest/internal/config"
	"github.com/mostafazog/mro-harvest/pkg/models"
)

// Client wraps the Elasticsearch client with harvest-specific operations.
type Client struct {
	es    *elasticsearch.Client
	index string
}

// New creates a new Elasticsearch client.
func New(cfg config.Search) (*Client, error) {
	if cfg.Index == "" {
		return nil, fmt.Errorf("%w: search index is required", config.ErrInvalid)
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	return &Client{
		es:    es,
		index: cfg.Index,
	}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) bool {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

// indexMapping defines the ES index mapping for canonical items. Unlisted
// fields map dynamically since item field sets vary by source.
var indexMapping = `{
	"mappings": {
		"properties": {
			"url": { "type": "keyword" },
			"name": { "type": "text", "analyzer": "english" },
			"brand": { "type": "keyword" },
			"sku": { "type": "keyword" },
			"description": { "type": "text", "analyzer": "english" },
			"source_run_id": { "type": "keyword" },
			"fetched_at": { "type": "date" }
		}
	}
}`

// CreateIndex creates the index with proper mapping.
func (c *Client) CreateIndex(ctx context.Context) error {
	// Check if index exists
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		// Index already exists
		return nil
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader([]byte(indexMapping))),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index: %s", res.String())
	}

	return nil
}

// DeleteIndex removes the index (for testing/cleanup).
func (c *Client) DeleteIndex(ctx context.Context) error {
	res, err := c.es.Indices.Delete([]string{c.index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// IndexItem indexes a single canonical item. The document ID derives from
// the identity key, so re-exporting updates in place instead of duplicating.
func (c *Client) IndexItem(ctx context.Context, item models.Record) error {
	doc := itemDocument(item)
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	res, err := c.es.Index(
		c.index,
		bytes.NewReader(data),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(models.ItemID(item.IdentityKey())),
	)
	if err != nil {
		return fmt.Errorf("failed to index item: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing item (status %d): %s", res.StatusCode, res.String())
	}

	return nil
}

// ExportItems indexes the whole canonical collection. The export stops on
// the first error since a partial export would silently under-report.
func (c *Client) ExportItems(ctx context.Context, items []models.Record) (int, error) {
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := c.IndexItem(ctx, item); err != nil {
			return i, fmt.Errorf("item %s: %w", item.IdentityKey(), err)
		}
	}
	return len(items), nil
}

// Refresh forces an index refresh (useful for testing).
func (c *Client) Refresh(ctx context.Context) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(c.index),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// searchResponse represents ES search response structure.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search performs a BM25 text search over item names, brands, and
// descriptions.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]map[string]any, error) {
	searchQuery := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"name^2", "brand", "description", "sku"},
			},
		},
		"size": limit,
	}

	data, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	docs := make([]map[string]any, len(sr.Hits.Hits))
	for i, hit := range sr.Hits.Hits {
		docs[i] = hit.Source
	}

	return docs, nil
}

func itemDocument(item models.Record) map[string]any {
	doc := make(map[string]any, len(item.Fields)+2)
	for k, v := range item.Fields {
		doc[k] = v
	}
	doc["source_run_id"] = item.SourceRunID
	if !item.FetchedAt.IsZero() {
		doc["fetched_at"] = item.FetchedAt
	}
	return doc
}
