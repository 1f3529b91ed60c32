// API client for a running spc server
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/shared"
)

// APIService makes requests to the HTTP API exposed by `spc serve`.
type APIService struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIService creates a new API client for the server at baseURL.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:3000"
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    baseURL,
		httpClient: client,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.do(ctx, http.MethodPost, path, data)
}

func (a *APIService) do(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// call sends in as JSON (when non-nil) and decodes a successful response into out.
func (a *APIService) call(ctx context.Context, method, path string, in, out any) error {
	var data []byte
	if in != nil {
		var err error
		if data, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	resp, err := a.do(ctx, method, path, data)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		msg := string(resp.Body)
		if m, ok := resp.JSONData.(map[string]any); ok {
			if e, ok := m["error"].(string); ok {
				msg = e
			}
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", shared.ErrInstanceNotFound, msg)
		}
		return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// StartCleanup starts (or returns the already running) cleanup instance for input.
func (a *APIService) StartCleanup(ctx context.Context, input models.WorkflowInput) (*models.InstanceLinks, error) {
	var links models.InstanceLinks
	path := "/api/orchestrators/" + url.PathEscape(models.OrchestratorName)
	if err := a.call(ctx, http.MethodPost, path, input, &links); err != nil {
		return nil, err
	}
	return &links, nil
}

// Instance returns the checkpoint of the instance with id.
func (a *APIService) Instance(ctx context.Context, id string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	if err := a.call(ctx, http.MethodGet, "/api/instances/"+url.PathEscape(id), nil, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Instances lists instances, optionally filtered by status.
func (a *APIService) Instances(ctx context.Context, status models.Status) ([]*models.Checkpoint, error) {
	path := "/api/instances"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}

	var out []*models.Checkpoint
	if err := a.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History returns the current generation's history of the instance with id.
func (a *APIService) History(ctx context.Context, id string) ([]models.HistoryEvent, error) {
	var out []models.HistoryEvent
	if err := a.call(ctx, http.MethodGet, "/api/instances/"+url.PathEscape(id)+"/history", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Terminate stops the instance with id, recording reason.
func (a *APIService) Terminate(ctx context.Context, id, reason string) error {
	path := "/api/instances/" + url.PathEscape(id) + "/terminate"
	if reason != "" {
		path += "?reason=" + url.QueryEscape(reason)
	}
	return a.call(ctx, http.MethodPost, path, nil, nil)
}

// Counter returns the removal counter for state.
func (a *APIService) Counter(ctx context.Context, state string) (*models.CounterState, error) {
	var st models.CounterState
	if err := a.call(ctx, http.MethodGet, "/api/counters/"+url.PathEscape(state), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ResetCounter sets the removal counter for state to zero.
func (a *APIService) ResetCounter(ctx context.Context, state string) (*models.CounterState, error) {
	var st models.CounterState
	if err := a.call(ctx, http.MethodPost, "/api/counters/"+url.PathEscape(state)+"/reset", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// CounterHistory returns up to limit applied operations on the removal counter for state, newest first.
func (a *APIService) CounterHistory(ctx context.Context, state string, limit int) ([]models.CounterMutation, error) {
	path := "/api/counters/" + url.PathEscape(state) + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var out []models.CounterMutation
	if err := a.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
