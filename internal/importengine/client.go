// Package importengine is an HTTP client for the tabular import engine.
package importengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AgentMesh-Net/bulkops/internal/bulk"
	"github.com/AgentMesh-Net/bulkops/internal/logging"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 4 << 10

type importRequest struct {
	CSVData        [][]string           `json:"csv_data"`
	DryRun         bool                 `json:"dry_run"`
	BulkImport     bool                 `json:"bulk_import"`
	CustomMessages *bulk.CustomMessages `json:"custom_messages,omitempty"`
}

// Client posts synthesized batches to the import engine.
type Client struct {
	url  string
	http *http.Client
}

// New creates a Client for the import endpoint at url.
func New(url string, timeout time.Duration) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// Import sends batch and decodes the per-row outcome. Row rejections are
// reported through FailedSlugs; only transport and protocol problems are
// returned as errors.
func (c *Client) Import(ctx context.Context, batch *bulk.Batch, opts bulk.ImportOptions) (*bulk.ImportResult, error) {
	body, err := json.Marshal(importRequest{
		CSVData:        batch.Rows(),
		DryRun:         opts.DryRun,
		BulkImport:     opts.BulkImport,
		CustomMessages: opts.CustomMessages,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal import request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build import request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id := logging.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	if id := logging.TaskIDFromContext(ctx); id != "" {
		req.Header.Set("X-Task-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("import request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("import engine returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var res bulk.ImportResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode import response: %w", err)
	}
	return &res, nil
}

var _ bulk.ImportEngine = (*Client)(nil)
