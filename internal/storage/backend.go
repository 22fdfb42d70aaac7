package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"oracle/internal/ledger/retry"
	"oracle/internal/models"
)

// BackendClient reads the pending-work feed from the application backend's
// REST API and reports resolutions back to it
type BackendClient struct {
	baseURL string
	http    *http.Client
}

func NewBackendClient(baseURL string, timeout time.Duration) (*BackendClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend url is empty, please provide a valid endpoint")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type pendingCallsResponse struct {
	Calls []json.RawMessage `json:"calls"`
}

type challengesResponse struct {
	Challenges []models.Challenge `json:"challenges"`
}

type resolveRequest struct {
	CallID      string         `json:"call_id"`
	Outcome     models.Outcome `json:"outcome"`
	TxSignature string         `json:"tx_signature,omitempty"`
}

// PendingCalls fetches the backend's pending list and re-applies the
// Active and deadline filters locally
func (b *BackendClient) PendingCalls(ctx context.Context, now time.Time) ([]*models.Call, error) {
	var resp pendingCallsResponse
	if err := b.do(ctx, http.MethodGet, "/api/oracle/pending-calls", nil, &resp); err != nil {
		return nil, err
	}

	calls := make([]*models.Call, 0, len(resp.Calls))
	for _, raw := range resp.Calls {
		var call models.Call
		if err := json.Unmarshal(raw, &call); err != nil {
			slog.Warn("Skipping malformed pending call", "error", err)
			continue
		}
		if call.Pending(now) {
			calls = append(calls, &call)
		}
	}
	sort.SliceStable(calls, func(i, j int) bool {
		return calls[i].Deadline < calls[j].Deadline
	})
	return calls, nil
}

func (b *BackendClient) Challenges(ctx context.Context, callLedgerID string) ([]models.Challenge, error) {
	var resp challengesResponse
	path := "/api/calls/" + url.PathEscape(callLedgerID) + "/challenges"
	if err := b.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Challenges, nil
}

// RecordResolution notifies the backend that a call was settled
func (b *BackendClient) RecordResolution(ctx context.Context, call *models.Call, outcome models.Outcome, txSignature string) error {
	req := resolveRequest{CallID: call.ID, Outcome: outcome, TxSignature: txSignature}
	return b.do(ctx, http.MethodPost, "/api/oracle/resolve", req, nil)
}

func (b *BackendClient) Ping(ctx context.Context) error {
	return b.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (b *BackendClient) Close() error {
	b.http.CloseIdleConnections()
	return nil
}

func (b *BackendClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
		if permanentStatus(resp.StatusCode) {
			return retry.Permanent(err)
		}
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// permanentStatus reports client errors that a retry cannot fix
func permanentStatus(code int) bool {
	return code >= 400 && code < 500 &&
		code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}
