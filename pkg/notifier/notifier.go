package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dealvista/engagement-backend/internal/models"
)

// Delivery is one outbound message handed to the notification sink.
type Delivery struct {
	UserID  string              `json:"userId"`
	Surface models.NudgeSurface `json:"surface"`
	Message string              `json:"message"`
	Ref     string              `json:"ref"` // nudge or intervention identifier for attribution
}

// Notifier represents a notification sink. Delivery is fire-and-forget from
// the engine's perspective: the caller records its own state first and only
// logs sink errors.
type Notifier interface {
	Send(ctx context.Context, delivery Delivery) (string, error)
}

// SurfaceRouter dispatches each delivery to the sink registered for its
// surface, falling back to Default for unregistered surfaces.
type SurfaceRouter struct {
	Routes  map[models.NudgeSurface]Notifier
	Default Notifier
}

// NewSurfaceRouter creates a router with the given per-surface sinks
func NewSurfaceRouter(routes map[models.NudgeSurface]Notifier, fallback Notifier) Notifier {
	return &SurfaceRouter{Routes: routes, Default: fallback}
}

// Send routes the delivery to the sink for its surface
func (n *SurfaceRouter) Send(ctx context.Context, delivery Delivery) (string, error) {
	if sink, ok := n.Routes[delivery.Surface]; ok {
		return sink.Send(ctx, delivery)
	}
	if n.Default == nil {
		return "", fmt.Errorf("no sink registered for surface %q", delivery.Surface)
	}
	return n.Default.Send(ctx, delivery)
}

// WebhookNotifier posts deliveries to the platform's notification relay,
// which owns channel fan-out (email, push, in-app inbox) and retries.
type WebhookNotifier struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// MockNotifier is a no-op sink for local development and tests.
type MockNotifier struct {
	Name string
}

// NewWebhookNotifier creates a notifier posting to the given relay URL
func NewWebhookNotifier(baseURL, apiKey string) Notifier {
	return &WebhookNotifier{
		BaseURL: baseURL,
		APIKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewMockNotifier creates a mock notification sink
func NewMockNotifier(name string) Notifier {
	return &MockNotifier{Name: name}
}

// Send posts a delivery to the relay and returns its message id
func (n *WebhookNotifier) Send(ctx context.Context, delivery Delivery) (string, error) {
	jsonBody, err := json.Marshal(delivery)
	if err != nil {
		return "", fmt.Errorf("failed to marshal delivery: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.BaseURL+"/v1/deliveries", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.APIKey)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send delivery: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("delivery failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return response.MessageID, nil
}

// Send simulates a delivery
func (n *MockNotifier) Send(_ context.Context, delivery Delivery) (string, error) {
	return fmt.Sprintf("%s-MOCK-MSG-%d", n.Name, time.Now().UnixNano()), nil
}
