package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Remote is the external interview API this client reconciles against.
// Implementations must have durably applied an operation before
// returning success; the sync engine deletes the corresponding queue
// item as soon as a call returns nil.
type Remote interface {
	// CreateInterview registers a new interview and returns its
	// permanent server-assigned id.
	CreateInterview(ctx context.Context, protocolID string, data []byte) (string, error)

	// UpdateInterview replaces the interview's session state.
	UpdateInterview(ctx context.Context, id string, data []byte) error

	// DeleteInterview removes the interview remotely.
	DeleteInterview(ctx context.Context, id string) error
}

// ConflictError is returned by a Remote when it observes that the
// remote state advanced independently of this client's pending queue.
// ServerData carries the remote snapshot for conflict recording.
type ConflictError struct {
	ServerData []byte
}

func (e *ConflictError) Error() string {
	return "remote interview diverged from local state"
}

// HTTPRemote is the reference JSON-over-HTTP implementation of Remote.
type HTTPRemote struct {
	baseURL   string
	stationID string
	client    *http.Client
}

// NewHTTPRemote builds a remote against baseURL. stationID identifies
// this device to the server.
func NewHTTPRemote(baseURL, stationID string, client *http.Client) *HTTPRemote {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPRemote{baseURL: baseURL, stationID: stationID, client: client}
}

type createInterviewRequest struct {
	ProtocolID string          `json:"protocolId"`
	StationID  string          `json:"stationId,omitempty"`
	Data       json.RawMessage `json:"data"`
}

type createInterviewResponse struct {
	ID string `json:"id"`
}

func (r *HTTPRemote) CreateInterview(ctx context.Context, protocolID string, data []byte) (string, error) {
	body, err := json.Marshal(createInterviewRequest{
		ProtocolID: protocolID,
		StationID:  r.stationID,
		Data:       data,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode create request: %w", err)
	}

	resp, err := r.do(ctx, http.MethodPost, "/interviews", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := r.check(resp); err != nil {
		return "", err
	}

	var created createInterviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("server returned empty interview id")
	}

	return created.ID, nil
}

func (r *HTTPRemote) UpdateInterview(ctx context.Context, id string, data []byte) error {
	body, err := json.Marshal(map[string]json.RawMessage{"data": data})
	if err != nil {
		return fmt.Errorf("failed to encode update request: %w", err)
	}

	resp, err := r.do(ctx, http.MethodPut, "/interviews/"+id, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return r.check(resp)
}

func (r *HTTPRemote) DeleteInterview(ctx context.Context, id string) error {
	resp, err := r.do(ctx, http.MethodDelete, "/interviews/"+id, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return r.check(resp)
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.stationID != "" {
		req.Header.Set("X-Station-Id", r.stationID)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote request failed: %w", err)
	}
	return resp, nil
}

// check maps HTTP statuses onto the sync error model. 409 carries the
// server's snapshot of the interview in its body.
func (r *HTTPRemote) check(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		serverData, err := io.ReadAll(resp.Body)
		if err != nil {
			serverData = nil
		}
		return &ConflictError{ServerData: serverData}
	default:
		return fmt.Errorf("remote returned status %d", resp.StatusCode)
	}
}
