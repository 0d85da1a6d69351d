package fetcher

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mostafazog/mro-harvest/pkg/models"
)

// extractArchive pulls raw item records out of one artifact zip bundle.
// Workers write JSON in several shapes; files that aren't valid JSON or hold
// no recognizable records are counted and skipped rather than failing the
// whole artifact.
func extractArchive(data []byte, runID string, fetchedAt time.Time) ([]models.Record, int, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("open artifact archive: %w", err)
	}

	var records []models.Record
	skippedFiles := 0

	for _, file := range reader.File {
		name := file.Name
		if !strings.HasSuffix(name, ".json") || strings.Contains(name, "metadata") {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			skippedFiles++
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			skippedFiles++
			continue
		}

		items, ok := extractItems(content)
		if !ok {
			skippedFiles++
			continue
		}
		for _, item := range items {
			records = append(records, models.Record{
				Fields:      flattenFields(item),
				SourceRunID: runID,
				FetchedAt:   fetchedAt,
			})
		}
	}

	return records, skippedFiles, nil
}

// extractItems accepts the record container shapes workers produce: a bare
// array, {"products": [...]}, {"results": [...]}, or a single record object
// carrying a url field.
func extractItems(data []byte) ([]gjson.Result, bool) {
	if !gjson.ValidBytes(data) {
		return nil, false
	}
	parsed := gjson.ParseBytes(data)

	switch {
	case parsed.IsArray():
		return objectsOnly(parsed.Array()), true
	case parsed.IsObject():
		if products := parsed.Get("products"); products.IsArray() {
			return objectsOnly(products.Array()), true
		}
		if results := parsed.Get("results"); results.IsArray() {
			return objectsOnly(results.Array()), true
		}
		if parsed.Get("url").Exists() {
			return []gjson.Result{parsed}, true
		}
	}
	return nil, false
}

func objectsOnly(items []gjson.Result) []gjson.Result {
	out := items[:0:0]
	for _, item := range items {
		if item.IsObject() {
			out = append(out, item)
		}
	}
	return out
}

// flattenFields converts a record object to a flat string map. Scalars keep
// their string form; nested arrays and objects (image lists, specification
// tables) are stored as their raw JSON.
func flattenFields(item gjson.Result) map[string]string {
	fields := make(map[string]string)
	item.ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.Null:
			fields[key.String()] = ""
		case gjson.String:
			fields[key.String()] = value.Str
		default:
			if value.IsArray() || value.IsObject() {
				fields[key.String()] = value.Raw
			} else {
				fields[key.String()] = value.String()
			}
		}
		return true
	})
	return fields
}
