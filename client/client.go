package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const defaultTimeout = 30 * time.Second

// Client is an HTTP client for the SkyCrate API. It handles request
// construction, bearer injection, and error classification.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      *CredentialStore
	logger     zerolog.Logger
}

// NewClient creates an API client. A nil httpClient gets a bounded
// default so calls can never hang forever.
func NewClient(baseURL string, httpClient *http.Client, creds *CredentialStore, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if creds == nil {
		creds = NewCredentialStore()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		creds:      creds,
		logger:     logger,
	}
}

// Credentials returns the client's credential store
func (c *Client) Credentials() *CredentialStore {
	return c.creds
}

// BaseURL returns the configured API root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do executes an HTTP request against the API. The path is appended to
// the client's base URL, and the current session token is attached
// when present. The caller closes the response body on success.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("skycrate: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if session := c.creds.Session(); session.Authenticated() {
		req.Header.Set("Authorization", "Bearer "+session.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("skycrate: request canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("skycrate: %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("request succeeded")
		return resp, nil
	}

	apiErr := c.readError(resp)
	c.logger.Warn().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Str("code", apiErr.Code).
		Msg("request failed")
	return nil, apiErr
}

// doJSON sends an optional JSON body and decodes a JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("skycrate: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, path, reader, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("skycrate: decode response: %w", err)
	}
	return nil
}

func decodeJSON(r io.Reader, out interface{}) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("skycrate: decode response: %w", err)
	}
	return nil
}

// readError drains an error response into an APIError. The body is a
// JSON object with error and code fields; anything else becomes a raw
// message.
func (c *Client) readError(resp *http.Response) *APIError {
	defer resp.Body.Close()

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Err:        classifyStatus(resp.StatusCode),
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		apiErr.Message = "(failed to read response body)"
		return apiErr
	}

	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Code = payload.Code
	} else {
		apiErr.Message = string(data)
	}
	return apiErr
}
