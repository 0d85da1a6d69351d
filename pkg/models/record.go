// Package models defines the data types shared across the harvest pipeline.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"time"
)

// ErrMissingIdentity is returned when a record carries no usable identity key.
var ErrMissingIdentity = errors.New("record has no identity key")

// IdentityField is the record field used to detect duplicates across runs.
// The canonical product URL is the identity exactly as scraped; variant URLs
// pointing at the same physical product stay distinct items, and any
// variant-collapsing is left to downstream consumers.
const IdentityField = "url"

// Record is one scraped item: a loosely structured field map plus provenance.
// Field values are flattened to strings; nested structures (image lists,
// specification tables) are stored as their JSON encoding.
type Record struct {
	Fields      map[string]string `json:"fields"`
	SourceRunID string            `json:"source_run_id"`
	FetchedAt   time.Time         `json:"fetched_at"`
}

// IdentityKey returns the record's dedup key.
func (r Record) IdentityKey() string {
	return r.Fields[IdentityField]
}

// Validate checks that the record can participate in consolidation.
func (r Record) Validate() error {
	if r.IdentityKey() == "" {
		return ErrMissingIdentity
	}
	return nil
}

// Completeness counts non-empty fields. Used as the primary tie-break when
// two records share an identity key: more populated fields wins.
func (r Record) Completeness() int {
	n := 0
	for _, v := range r.Fields {
		if v != "" {
			n++
		}
	}
	return n
}

// FieldNames returns the record's field names in sorted order.
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ItemID creates a deterministic short ID from an identity key.
// The ID is the first 16 hex chars of the SHA-256 of the key.
func ItemID(identityKey string) string {
	hash := sha256.Sum256([]byte(identityKey))
	return hex.EncodeToString(hash[:])[:16]
}
