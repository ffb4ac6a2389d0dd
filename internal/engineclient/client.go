// Package engineclient owns the single persistent WebSocket connection
// to the Engine and the plain HTTP calls (queue/history/interrupt)
// against its REST surface, grounded on the teacher's
// internal/proxy/upstream.go pattern of an explicit *http.Client (here
// with a 30s timeout) rather than relying on http.DefaultClient.
package engineclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SaladTechnologies/comfyui-api-sub000/internal/correlation"
	"github.com/SaladTechnologies/comfyui-api-sub000/internal/models"
)

// Client talks to the Engine's HTTP REST surface. No retry is applied
// here (spec §7: "other operations are not retried transparently") —
// only the webhook delivery path retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	table      *correlation.Table

	ws  *wsConn // set by Connect/dial
	hub *wsHub  // set by Connect
}

// New creates a Client bound to the Engine's HTTP base URL.
func New(baseURL string, table *correlation.Table) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		table: table,
	}
}

// queueRequest/queueResponse model the Engine's POST /prompt shape.
type queueRequest struct {
	Prompt   models.Prompt `json:"prompt"`
	ClientID string        `json:"client_id"`
}

type queueResponse struct {
	PromptID string `json:"prompt_id"`
}

// Queue POSTs prompt to the Engine's queue endpoint and returns its
// Engine-assigned id.
func (c *Client) Queue(ctx context.Context, prompt models.Prompt, clientID string) (string, error) {
	body, err := json.Marshal(queueRequest{Prompt: prompt, ClientID: clientID})
	if err != nil {
		return "", fmt.Errorf("engineclient: marshaling queue request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", models.NewDispatchError("queueing prompt", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", models.NewDispatchError(fmt.Sprintf("engine returned status %d", resp.StatusCode), nil)
	}

	var out queueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", models.NewDispatchError("decoding queue response", err)
	}
	return out.PromptID, nil
}

// historyEntry models one engineId's entry in the Engine's history map.
type historyEntry struct {
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
	Outputs map[string]any `json:"outputs"`
}

// HistoryStatus is the coarse classification Completion Coordinator
// polling needs.
type HistoryStatus int

const (
	HistoryPending HistoryStatus = iota
	HistoryCompleted
	HistoryError
)

// History GETs the Engine's history for engineID. Returns HistoryPending
// with a nil outputs map when the Engine hasn't recorded the prompt yet.
func (c *Client) History(ctx context.Context, engineID string) (HistoryStatus, map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+engineID, nil)
	if err != nil {
		return HistoryPending, nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HistoryPending, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HistoryPending, nil, fmt.Errorf("engineclient: history status %d", resp.StatusCode)
	}

	var out map[string]historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return HistoryPending, nil, fmt.Errorf("engineclient: decoding history: %w", err)
	}

	entry, ok := out[engineID]
	if !ok {
		return HistoryPending, nil, nil
	}
	switch entry.Status.StatusStr {
	case "error":
		return HistoryError, nil, nil
	case "success", "completed":
		return HistoryCompleted, entry.Outputs, nil
	default:
		if entry.Status.Completed {
			return HistoryCompleted, entry.Outputs, nil
		}
		return HistoryPending, nil, nil
	}
}

// Interrupt looks up callerID's Engine id via the correlation table and
// asks the Engine to interrupt it.
func (c *Client) Interrupt(ctx context.Context, callerID string) error {
	engineID, ok := c.table.EngineID(callerID)
	if !ok {
		return fmt.Errorf("engineclient: no engine id mapped for caller id %q", callerID)
	}

	body, err := json.Marshal(map[string]string{"prompt_id": engineID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/interrupt", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engineclient: interrupt status %d", resp.StatusCode)
	}
	return nil
}
