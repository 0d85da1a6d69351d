package fetcher

import (
	"archive/zip"
	"bytes"
	"testing"
	"time"
)

// buildZip creates an in-memory zip archive from name -> content pairs.
func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractArchiveShapes(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantRecords int
	}{
		{
			name:        "bare array",
			content:     `[{"url": "https://x/p/1", "name": "A"}, {"url": "https://x/p/2", "name": "B"}]`,
			wantRecords: 2,
		},
		{
			name:        "products wrapper",
			content:     `{"products": [{"url": "https://x/p/1", "name": "A"}]}`,
			wantRecords: 1,
		},
		{
			name:        "results wrapper",
			content:     `{"results": [{"url": "https://x/p/1"}, {"url": "https://x/p/2"}]}`,
			wantRecords: 2,
		},
		{
			name:        "single record object",
			content:     `{"url": "https://x/p/1", "name": "A", "price": "9.99"}`,
			wantRecords: 1,
		},
		{
			name:        "unrecognized object",
			content:     `{"summary": "nothing here"}`,
			wantRecords: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildZip(t, map[string]string{"batch_0.json": tt.content})
			records, _, err := extractArchive(data, "r1", time.Now())
			if err != nil {
				t.Fatalf("extractArchive() error = %v", err)
			}
			if len(records) != tt.wantRecords {
				t.Errorf("extracted %d records, want %d", len(records), tt.wantRecords)
			}
			for _, r := range records {
				if r.SourceRunID != "r1" {
					t.Errorf("record source run = %q, want r1", r.SourceRunID)
				}
			}
		})
	}
}

func TestExtractArchiveSkipsBadAndNonJSONFiles(t *testing.T) {
	data := buildZip(t, map[string]string{
		"good.json":     `[{"url": "https://x/p/1"}]`,
		"broken.json":   `{not json at all`,
		"metadata.json": `{"worker": 3}`,
		"report.md":     `# Report`,
	})

	records, skipped, err := extractArchive(data, "r1", time.Now())
	if err != nil {
		t.Fatalf("extractArchive() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("extracted %d records, want 1", len(records))
	}
	if skipped != 1 {
		t.Errorf("skipped %d files, want 1 (the broken one)", skipped)
	}
}

func TestExtractArchiveNotAZip(t *testing.T) {
	if _, _, err := extractArchive([]byte("not a zip"), "r1", time.Now()); err == nil {
		t.Error("extractArchive() on garbage succeeded, want error")
	}
}

func TestFlattenFieldsNestedValues(t *testing.T) {
	data := buildZip(t, map[string]string{
		"p.json": `[{"url": "https://x/p/1", "price": 19.5, "in_stock": true,
		            "images": ["a.jpg", "b.jpg"], "specs": {"weight": "2kg"}, "note": null}]`,
	})
	records, _, err := extractArchive(data, "r1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("extracted %d records", len(records))
	}

	fields := records[0].Fields
	if fields["price"] != "19.5" {
		t.Errorf("price = %q", fields["price"])
	}
	if fields["in_stock"] != "true" {
		t.Errorf("in_stock = %q", fields["in_stock"])
	}
	if fields["images"] != `["a.jpg", "b.jpg"]` {
		t.Errorf("images = %q, want raw JSON", fields["images"])
	}
	if fields["note"] != "" {
		t.Errorf("null value = %q, want empty", fields["note"])
	}
}
