// Package registry is the client for the external job registry: the GitHub
// Actions control plane that runs the remote scrape workers. The rest of the
// pipeline treats it as a black box returning opaque run IDs and zip payloads.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// LocalRunPrefix marks run IDs generated locally when a workflow dispatch
// could not be correlated with a registry run (the dispatch endpoint returns
// no run ID). Such runs are reconciled on a later poll.
const LocalRunPrefix = "local-"

// Config holds registry client configuration.
type Config struct {
	BaseURL      string // default https://api.github.com
	Repo         string // "owner/name"
	WorkflowFile string // workflow filename for dispatches
	Ref          string // git ref for dispatches, default "main"
	Token        string
	Timeout      time.Duration

	// How long SubmitRun polls for the run created by a dispatch before
	// falling back to a local ID.
	CorrelateAttempts int
	CorrelateDelay    time.Duration
}

// Client talks to the GitHub Actions REST API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a registry client.
func New(config Config) (*Client, error) {
	if config.Repo == "" {
		return nil, fmt.Errorf("registry repo is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.github.com"
	}
	if config.Ref == "" {
		config.Ref = "main"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.CorrelateAttempts == 0 {
		config.CorrelateAttempts = 5
	}
	if config.CorrelateDelay == 0 {
		config.CorrelateDelay = 3 * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// RunSummary mirrors one workflow run as reported by the registry.
type RunSummary struct {
	ID         int64     `json:"id"`
	RunNumber  int       `json:"run_number"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	CreatedAt  time.Time `json:"created_at"`
	HTMLURL    string    `json:"html_url"`
}

// RunID returns the registry run ID as an opaque string.
func (r RunSummary) RunID() string {
	return strconv.FormatInt(r.ID, 10)
}

// Completed reports whether the run reached a terminal status.
func (r RunSummary) Completed() bool {
	return r.Status == "completed"
}

// Succeeded reports whether the run completed successfully.
func (r RunSummary) Succeeded() bool {
	return r.Status == "completed" && r.Conclusion == "success"
}

// Artifact is one downloadable output bundle of a completed run.
type Artifact struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	SizeInBytes        int64  `json:"size_in_bytes"`
	ArchiveDownloadURL string `json:"archive_download_url"`
	Expired            bool   `json:"expired"`
}

// ListRuns returns recent workflow runs, optionally filtered by status
// ("completed", "in_progress", "queued"; empty for all).
func (c *Client) ListRuns(ctx context.Context, status string, perPage int) ([]RunSummary, error) {
	if perPage <= 0 {
		perPage = 30
	}
	url := fmt.Sprintf("%s/repos/%s/actions/runs?per_page=%d", c.config.BaseURL, c.config.Repo, perPage)
	if status != "" {
		url += "&status=" + status
	}

	var payload struct {
		WorkflowRuns []RunSummary `json:"workflow_runs"`
	}
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return payload.WorkflowRuns, nil
}

// ListArtifacts returns the artifacts of one run.
func (c *Client) ListArtifacts(ctx context.Context, runID string) ([]Artifact, error) {
	url := fmt.Sprintf("%s/repos/%s/actions/runs/%s/artifacts", c.config.BaseURL, c.config.Repo, runID)

	var payload struct {
		Artifacts []Artifact `json:"artifacts"`
	}
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, fmt.Errorf("list artifacts for run %s: %w", runID, err)
	}
	return payload.Artifacts, nil
}

// Download fetches an artifact's zip payload.
func (c *Client) Download(ctx context.Context, artifact Artifact) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, artifact.ArchiveDownloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download artifact %s: %w", artifact.Name, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("download artifact %s: %w", artifact.Name, err)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("read artifact %s: %w", artifact.Name, err)}
	}
	return data, nil
}

// DispatchInputs are the workflow inputs for one submission wave.
type DispatchInputs struct {
	TotalProducts int
	BatchSize     int
	Workers       int
	StartIndex    int
}

// SubmitRun triggers a workflow dispatch and returns the resulting run ID.
// GitHub's dispatch endpoint answers 204 with no body, so the client
// correlates by polling for a run created after the dispatch; when none
// shows up inside the correlation window it returns a local placeholder ID.
func (c *Client) SubmitRun(ctx context.Context, inputs DispatchInputs) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/actions/workflows/%s/dispatches",
		c.config.BaseURL, c.config.Repo, c.config.WorkflowFile)

	body := map[string]any{
		"ref": c.config.Ref,
		"inputs": map[string]string{
			"total_products": strconv.Itoa(inputs.TotalProducts),
			"batch_size":     strconv.Itoa(inputs.BatchSize),
			"github_workers": strconv.Itoa(inputs.Workers),
			"start_index":    strconv.Itoa(inputs.StartIndex),
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal dispatch payload: %w", err)
	}

	dispatchedAt := time.Now().UTC()

	resp, err := c.do(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("submit run: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return "", fmt.Errorf("submit run: %w", err)
	}

	if id := c.correlateDispatch(ctx, dispatchedAt); id != "" {
		return id, nil
	}
	return LocalRunPrefix + uuid.New().String(), nil
}

func (c *Client) correlateDispatch(ctx context.Context, dispatchedAt time.Time) string {
	for attempt := 0; attempt < c.config.CorrelateAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ""
			case <-time.After(c.config.CorrelateDelay):
			}
		}

		runs, err := c.ListRuns(ctx, "", 10)
		if err != nil {
			continue
		}
		for _, run := range runs {
			// Dispatch timestamps have second precision on the API side.
			if !run.CreatedAt.Before(dispatchedAt.Truncate(time.Second)) {
				return run.RunID()
			}
		}
	}
	return ""
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "token "+c.config.Token)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network-level failures are always retryable.
		return nil, &TransientError{Err: err}
	}
	return resp, nil
}
