// Executors that replay queued driver actions against the portal backend.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/baltiqcast/driversync/internal/models"
	syncpkg "github.com/baltiqcast/driversync/internal/sync"
)

const defaultPortalURL = "http://localhost:3000/api"

// PortalClient posts queued actions to the portal backend. Every endpoint is
// idempotent server-side (keyed on ids inside the payload), which is what
// makes at-least-once delivery safe.
type PortalClient struct {
	baseURL string
	client  *http.Client
}

// NewPortalClient builds a client for the configured portal backend. The
// installer points DRIVERSYNC_PORTAL_URL at the real deployment.
func NewPortalClient() *PortalClient {
	baseURL := os.Getenv("DRIVERSYNC_PORTAL_URL")
	if baseURL == "" {
		baseURL = defaultPortalURL
	}
	return &PortalClient{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

// post replays one action payload and maps the HTTP outcome onto the drain
// outcome model. Network failures and 5xx are retryable; 409 and other 4xx
// mean the server rejected the action and a retry cannot help.
func (p *PortalClient) post(ctx context.Context, path string, payload json.RawMessage) syncpkg.Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return syncpkg.Retry(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return syncpkg.Retry(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return syncpkg.OK()
	case resp.StatusCode >= 500:
		return syncpkg.Retry(fmt.Errorf("portal returned %d", resp.StatusCode))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return syncpkg.Conflict(fmt.Sprintf("portal rejected action (%d): %s", resp.StatusCode, body))
	}
}

// registerExecutors binds every queueable driver action to its portal
// endpoint.
func registerExecutors(registry *syncpkg.Registry, portal *PortalClient) error {
	routes := map[models.ActionType]string{
		models.ActionCompleteDelivery:       "/deliveries/complete",
		models.ActionSaveVisualVerification: "/deliveries/verification",
		models.ActionLoadElement:            "/elements/load",
		models.ActionReportIssue:            "/issues",
	}

	for actionType, path := range routes {
		path := path
		err := registry.Register(actionType, func(ctx context.Context, payload json.RawMessage) syncpkg.Outcome {
			return portal.post(ctx, path, payload)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
