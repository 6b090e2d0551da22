package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrRequest indicates the admin API returned a non-2xx response; the
// message carries whatever error body the server attached.
var ErrRequest = errors.New("admin request failed")

// sessionView mirrors the JSON shape internal/server's AdminServer returns
// for a single session.
type sessionView struct {
	Designator      string `json:"designator"`
	Transport       string `json:"transport"`
	ExportTableSize int    `json:"export_table_size"`
	ImportTableSize int    `json:"import_table_size"`
}

// adminClient is a thin wrapper over the gocaptp admin HTTP API.
type adminClient struct {
	baseURL string
	http    *http.Client
}

func newAdminClient(baseURL string) *adminClient {
	return &adminClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Healthz calls GET /healthz.
func (c *adminClient) Healthz(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListSessions calls GET /api/v1/sessions.
func (c *adminClient) ListSessions(ctx context.Context) ([]sessionView, error) {
	var out struct {
		Sessions []sessionView `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// GetSession calls GET /api/v1/sessions/{designator}.
func (c *adminClient) GetSession(ctx context.Context, designator string) (*sessionView, error) {
	var out sessionView
	path := "/api/v1/sessions/" + designator
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AbortSession calls POST /api/v1/sessions/{designator}/abort.
func (c *adminClient) AbortSession(ctx context.Context, designator, reason string) error {
	body, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return fmt.Errorf("marshal abort request: %w", err)
	}
	path := "/api/v1/sessions/" + designator + "/abort"
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), nil)
}

func (c *adminClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error == "" {
			errBody.Error = resp.Status
		}
		return fmt.Errorf("%w: %s", ErrRequest, errBody.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
