// Package faultlog records per-batch and per-run failures in a
// machine-readable JSONL file, separate from the activity log, so operators
// can query what failed without grepping slog output.
package faultlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Failure kinds.
const (
	KindDispatch    = "dispatch_failure"
	KindFetch       = "fetch_failure"
	KindParse       = "parse_failure"
	KindConsolidate = "consolidate_failure"
)

// Entry is one recorded failure.
type Entry struct {
	Kind    string    `json:"kind"`
	Subject string    `json:"subject"` // batch or run ID
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// Log appends failure entries to a JSONL file. A nil *Log discards entries,
// so callers don't have to guard every call site.
type Log struct {
	path string
	mu   sync.Mutex
}

// Open creates a fault log backed by the given file path.
func Open(path string) *Log {
	return &Log{path: path}
}

// Record appends one failure entry. Errors writing the fault log are
// returned but callers typically only log them; a broken fault log must not
// take down the pipeline.
func (l *Log) Record(kind, subject, reason string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open fault log: %w", err)
	}
	defer f.Close()

	entry := Entry{Kind: kind, Subject: subject, Reason: reason, At: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal fault entry: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append fault entry: %w", err)
	}
	return nil
}

// Entries reads back all recorded failures. Used by the status command.
func (l *Log) Entries() ([]Entry, error) {
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open fault log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			// A torn final line from a crash mid-append is not fatal.
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan fault log: %w", err)
	}
	return entries, nil
}
