package interpreter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/parley/pkg/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxErrorBody = 4 << 10

// HTTPError is a non-2xx answer from the interpreter service.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// HTTPClient calls an interpreter service over JSON/HTTP:
//
//	POST {base}/interpret  {"definitions": [...], "text": "..."}          -> Analysis | 204
//	POST {base}/solve      {"definition": {...}, "state": {...}, "text": "..."} -> {"slots": [...]}
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type interpretRequest struct {
	Definitions []*models.WorkDefinition `json:"definitions"`
	Text        string                   `json:"text"`
}

type solveRequest struct {
	Definition *models.WorkDefinition `json:"definition"`
	State      models.Snapshot        `json:"state"`
	Text       string                 `json:"text"`
}

type solveResponse struct {
	Slots []models.CandidateSlot `json:"slots"`
}

func (c *HTTPClient) Interpret(ctx context.Context, definitions []*models.WorkDefinition, text string) (*Analysis, error) {
	var out Analysis

	found, err := c.post(ctx, "/interpret", interpretRequest{Definitions: definitions, Text: text}, &out)
	if err != nil || !found {
		return nil, err
	}

	return &out, nil
}

func (c *HTTPClient) SolveActiveWork(ctx context.Context, definition *models.WorkDefinition, state models.Snapshot, text string) ([]models.CandidateSlot, error) {
	var out solveResponse

	found, err := c.post(ctx, "/solve", solveRequest{Definition: definition, State: state, Text: text}, &out)
	if err != nil || !found {
		return nil, err
	}

	return out.Slots, nil
}

// post reports false without error when the service answers 204 No Content.
func (c *HTTPClient) post(ctx context.Context, path string, in, out any) (bool, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return false, fmt.Errorf("failed to encode interpreter request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create interpreter request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("interpreter request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNoContent {
		return false, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return false, &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode interpreter response: %w", err)
	}

	return true, nil
}
