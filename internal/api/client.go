// Package api is the HTTP client for the remote triage service. It speaks
// the service's wire contract (Spanish field names, X-API-Key credential)
// and maps failures onto the error taxonomy the rest of the app works with.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxBodyBytes = 5 << 20 // 5 MB

// ValidationError is a structured rejection of a triage submission: the
// service answered 4xx with a detail list of field messages.
type ValidationError struct {
	StatusCode int
	Messages   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("triage service rejected submission (%d): %s",
		e.StatusCode, strings.Join(e.Messages, "; "))
}

// Client talks to the triage service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client for the service at baseURL. The apiKey is only sent
// on destructive operations (delete-all).
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// endpoint appends each part to the base URL as exactly one path segment.
// Parts are escaped individually so a "/" inside a label (category names are
// free text) cannot split into two segments.
func (c *Client) endpoint(parts ...string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	raw := u.EscapedPath()
	for _, p := range parts {
		raw = strings.TrimSuffix(raw, "/") + "/" + url.PathEscape(p)
	}
	u.RawPath = raw
	if u.Path, err = url.PathUnescape(raw); err != nil {
		return "", fmt.Errorf("escape path: %w", err)
	}
	return u.String(), nil
}

// ListPatients fetches all registered patients. A missing or empty list is
// returned as an empty slice, not an error.
func (c *Client) ListPatients(ctx context.Context) ([]Patient, error) {
	var out struct {
		Pacientes []Patient `json:"pacientes"`
	}
	if err := c.getJSON(ctx, &out, "pacientes"); err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return out.Pacientes, nil
}

// DeleteAllPatients removes every patient from the service. Requires the
// shared API key.
func (c *Client) DeleteAllPatients(ctx context.Context) error {
	u, err := c.endpoint("pacientes")
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete patients: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("delete patients: service returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// SubmitTriage posts the full intake snapshot. A 2xx response yields the
// triage result; a 4xx with a structured detail list yields *ValidationError.
func (c *Client) SubmitTriage(ctx context.Context, in *Intake) (*TriageResult, error) {
	u, err := c.endpoint("triaje")
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal intake: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit triage: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var detail struct {
			Detail []string `json:"detail"`
		}
		if err := json.Unmarshal(respBody, &detail); err == nil && len(detail.Detail) > 0 {
			return nil, &ValidationError{StatusCode: resp.StatusCode, Messages: detail.Detail}
		}
		return nil, fmt.Errorf("submit triage: service returned %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("submit triage: service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result TriageResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal triage result: %w", err)
	}
	return &result, nil
}

// Categories fetches the ordered category labels.
func (c *Client) Categories(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.getJSON(ctx, &out, "categorias"); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// Questions fetches the question set for a category. The label travels as a
// single escaped path segment; ordering is whatever the service returned.
func (c *Client) Questions(ctx context.Context, category string) ([]Question, error) {
	var out []Question
	if err := c.getJSON(ctx, &out, "preguntas", category); err != nil {
		return nil, fmt.Errorf("questions for %q: %w", category, err)
	}
	return out, nil
}

// Explain requests a saliency explanation for a free-text description.
func (c *Client) Explain(ctx context.Context, descripcion string) (*Explanation, error) {
	u, err := c.endpoint("explicar")
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{"descripcion": descripcion})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("explain: service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out Explanation
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal explanation: %w", err)
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, out any, parts ...string) error {
	u, err := c.endpoint(parts...)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
