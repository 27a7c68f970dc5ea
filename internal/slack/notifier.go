package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNotConfigured is returned when no webhook URL is set
var ErrNotConfigured = errors.New("slack webhook URL not configured")

// maxErrorBody bounds how much of a failed response is kept
const maxErrorBody = 4 << 10

// DeliveryError is returned for a non-2xx response
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("slack API %d: %s", e.StatusCode, e.Body)
}

// Notifier posts messages to a Slack incoming webhook
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

// NewNotifier creates a Slack notifier. A nil client uses http.DefaultClient.
func NewNotifier(webhookURL string, client *http.Client) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: client,
	}
}

// Name returns "slack"
func (n *Notifier) Name() string { return "slack" }

// Deliver serializes msg and sends it in a single POST
func (n *Notifier) Deliver(ctx context.Context, msg *Message) error {
	if n.webhookURL == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return nil
}
