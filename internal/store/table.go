// Package store adapts the shared tabular service: the account roster with
// its confirmed write-back protocol and the per-account report tables.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// TableAPI is the key-by-coordinate surface of the tabular service. Rows and
// columns are 1-based; row 1 is the header.
type TableAPI interface {
	// Rows returns every row of the table, header included.
	Rows(ctx context.Context, table string) ([][]string, error)
	HeaderRow(ctx context.Context, table string) ([]string, error)
	ColValues(ctx context.Context, table string, col int) ([]string, error)
	ReadCell(ctx context.Context, table string, row, col int) (string, error)
	WriteCell(ctx context.Context, table string, row, col int, value string) error
	// UpdateRange writes a rectangular block anchored at (startRow, startCol).
	UpdateRange(ctx context.Context, table string, startRow, startCol int, values [][]string) error
	Clear(ctx context.Context, table string) error
	// EnsureTable creates the table if missing and grows it to at least
	// rows x cols.
	EnsureTable(ctx context.Context, table string, rows, cols int) error
}

// HTTPTableClient talks JSON over HTTP to the tabular service.
type HTTPTableClient struct {
	baseURL  string
	document string
	token    string
	http     *http.Client
}

// NewHTTPTableClient builds a client for one shared document.
func NewHTTPTableClient(baseURL, document, token string, timeout time.Duration) *HTTPTableClient {
	return &HTTPTableClient{
		baseURL:  baseURL,
		document: document,
		token:    token,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *HTTPTableClient) tableURL(table, suffix string) string {
	return fmt.Sprintf("%s/documents/%s/tables/%s%s",
		c.baseURL, url.PathEscape(c.document), url.PathEscape(table), suffix)
}

func (c *HTTPTableClient) request(ctx context.Context, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode table request: %w", err)
		}
		reader = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("build table request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("table service %s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("table service %s returned %d: %s", rawURL, resp.StatusCode, string(payload))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode table response: %w", err)
	}
	return nil
}

func (c *HTTPTableClient) Rows(ctx context.Context, table string) ([][]string, error) {
	var resp struct {
		Values [][]string `json:"values"`
	}
	if err := c.request(ctx, http.MethodGet, c.tableURL(table, "/values"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *HTTPTableClient) HeaderRow(ctx context.Context, table string) ([]string, error) {
	var resp struct {
		Values []string `json:"values"`
	}
	if err := c.request(ctx, http.MethodGet, c.tableURL(table, "/rows/1"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *HTTPTableClient) ColValues(ctx context.Context, table string, col int) ([]string, error) {
	var resp struct {
		Values []string `json:"values"`
	}
	u := c.tableURL(table, fmt.Sprintf("/cols/%d", col))
	if err := c.request(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *HTTPTableClient) ReadCell(ctx context.Context, table string, row, col int) (string, error) {
	var resp struct {
		Value string `json:"value"`
	}
	u := c.tableURL(table, fmt.Sprintf("/cells/%d/%d", row, col))
	if err := c.request(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return "", err
	}
	return resp.Value, nil
}

func (c *HTTPTableClient) WriteCell(ctx context.Context, table string, row, col int, value string) error {
	u := c.tableURL(table, fmt.Sprintf("/cells/%d/%d", row, col))
	return c.request(ctx, http.MethodPut, u, map[string]string{"value": value}, nil)
}

func (c *HTTPTableClient) UpdateRange(ctx context.Context, table string, startRow, startCol int, values [][]string) error {
	body := map[string]any{
		"row":    startRow,
		"col":    startCol,
		"values": values,
	}
	return c.request(ctx, http.MethodPost, c.tableURL(table, "/range"), body, nil)
}

func (c *HTTPTableClient) Clear(ctx context.Context, table string) error {
	return c.request(ctx, http.MethodPost, c.tableURL(table, "/clear"), nil, nil)
}

func (c *HTTPTableClient) EnsureTable(ctx context.Context, table string, rows, cols int) error {
	body := map[string]int{"rows": rows, "cols": cols}
	return c.request(ctx, http.MethodPost, c.tableURL(table, "/ensure"), body, nil)
}

var _ TableAPI = (*HTTPTableClient)(nil)
