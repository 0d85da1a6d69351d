package staging

import (
	"testing"
	"time"

	"github.com/mostafazog/mro-harvest/pkg/models"
)

func testRecords(runID string, urls ...string) []models.Record {
	var records []models.Record
	for _, u := range urls {
		records = append(records, models.Record{
			Fields:      map[string]string{"url": u, "name": "Widget"},
			SourceRunID: runID,
			FetchedAt:   time.Now().UTC(),
		})
	}
	return records
}

func TestWriteAndReadRun(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	records := testRecords("123", "https://example.com/p/1", "https://example.com/p/2")
	if err := s.WriteRun("123", records); err != nil {
		t.Fatalf("WriteRun() error = %v", err)
	}

	got, err := s.ReadRun("123")
	if err != nil {
		t.Fatalf("ReadRun() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadRun() returned %d records, want 2", len(got))
	}
	if got[0].IdentityKey() != "https://example.com/p/1" {
		t.Errorf("record 0 key = %q", got[0].IdentityKey())
	}
}

func TestWriteRunOverwritesNotAppends(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.WriteRun("123", testRecords("123", "https://example.com/p/1", "https://example.com/p/2")); err != nil {
		t.Fatal(err)
	}
	// Re-staging the same run must replace, not accumulate.
	if err := s.WriteRun("123", testRecords("123", "https://example.com/p/1")); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadRun("123")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("ReadRun() returned %d records after re-stage, want 1", len(got))
	}
}

func TestListRunIDsSorted(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, id := range []string{"20", "5", "local-abc"} {
		if err := s.WriteRun(id, testRecords(id, "https://example.com/p/"+id)); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := s.ListRunIDs()
	if err != nil {
		t.Fatalf("ListRunIDs() error = %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("ListRunIDs() = %v, want 3 entries", ids)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] > ids[i] {
			t.Errorf("ListRunIDs() not sorted: %v", ids)
		}
	}
}

func TestWriteRunEmptyIDRejected(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.WriteRun("", nil); err == nil {
		t.Error("WriteRun(\"\") succeeded, want error")
	}
}
