package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpClient is a thin wrapper shared by every subcommand, grounded on the
// teacher's run.go inline http.Post/http.NewRequest calls, consolidated so
// every command applies auth headers and error handling the same way.
type httpClient struct {
	base   string
	apiKey string
	header string
	user   string
	client *http.Client
}

func newClient() *httpClient {
	return &httpClient{
		base:   serverURL,
		apiKey: apiKey,
		header: headerName,
		user:   userID,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// apiError mirrors the server's {error:{kind,message,correlation_id}} body
// (§7) so command output surfaces the same taxonomy the HTTP layer returns.
type apiError struct {
	Error struct {
		Kind          string `json:"kind"`
		Message       string `json:"message"`
		CorrelationID string `json:"correlation_id,omitempty"`
	} `json:"error"`
}

func (c *httpClient) do(method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.base+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(c.header, c.apiKey)
	}
	if c.user != "" {
		req.Header.Set("X-User-Id", c.user)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Kind != "" {
			return fmt.Errorf("%s: %s (%s)", resp.Status, apiErr.Error.Message, apiErr.Error.Kind)
		}
		return fmt.Errorf("%s: %s", resp.Status, string(raw))
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *httpClient) get(path string, out any) error          { return c.do(http.MethodGet, path, nil, out) }
func (c *httpClient) post(path string, body, out any) error   { return c.do(http.MethodPost, path, body, out) }
func (c *httpClient) delete(path string, out any) error       { return c.do(http.MethodDelete, path, nil, out) }
