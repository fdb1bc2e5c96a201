// Package notify implements the Outcome Notifier client: confirmed-owner
// leads are forwarded to the admin-side receiver over HTTP. Notification is
// best-effort; callers log failures and never roll back core state.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// OwnerNotification is the wire body for POST /notify_owner.
type OwnerNotification struct {
	MessageText  string  `json:"message_text"`
	AuthorID     int64   `json:"author_id"`
	Username     *string `json:"username"`
	OriginalLink *string `json:"original_link"`
	OwnerStatus  string  `json:"owner_status"`
}

// Notifier forwards confirmed-owner leads to the operator side.
type Notifier interface {
	NotifyOwner(ctx context.Context, n OwnerNotification) error
}

// HTTPNotifier implements Notifier against the admin bot's internal API.
type HTTPNotifier struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPNotifier creates a Notifier posting to baseURL/notify_owner.
func NewHTTPNotifier(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPNotifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "notifier"),
	}
}

// NotifyOwner posts the notification. Any 2xx response is success; anything
// else is an error for the caller to log.
func (n *HTTPNotifier) NotifyOwner(ctx context.Context, notification OwnerNotification) error {
	notification.OwnerStatus = "OWNER"

	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode owner notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.baseURL+"/notify_owner", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build owner notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("owner notification request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("owner notification rejected with status %d", resp.StatusCode)
	}

	n.logger.InfoContext(ctx, "Owner notification delivered", "author_id", notification.AuthorID)
	return nil
}
