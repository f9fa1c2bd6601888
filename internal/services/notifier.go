package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPNotifier is an HTTP implementation of the Notifier interface,
// POSTing to the external notification dispatch service.
type HTTPNotifier struct {
	url    string
	client *http.Client
}

// NewHTTPNotifier creates a new HTTPNotifier.
func NewHTTPNotifier(url string) *HTTPNotifier {
	return &HTTPNotifier{url: url, client: http.DefaultClient}
}

// Send dispatches one notification. It returns whether the dispatcher
// accepted it.
func (c *HTTPNotifier) Send(ctx context.Context, userID string, n Notification) (bool, error) {
	requestBody, err := json.Marshal(map[string]any{
		"user_id": userID,
		"title":   n.Title,
		"body":    n.Body,
		"data":    n.Data,
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/notifications", bytes.NewBuffer(requestBody))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to dispatch notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return false, fmt.Errorf("notification dispatch rejected: status code %d", resp.StatusCode)
	}

	return true, nil
}

var _ Notifier = (*HTTPNotifier)(nil)
