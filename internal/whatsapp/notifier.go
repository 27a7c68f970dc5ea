package whatsapp

import (
	"context"
	"fmt"

	"github.com/nahidhasan98/netconf-relay/internal/slack"
	"github.com/nahidhasan98/netconf-relay/internal/validation"
)

// Sender is the part of Client the notifier needs
type Sender interface {
	EnsureConnected(ctx context.Context) error
	SendText(ctx context.Context, jid, text string) error
}

// Notifier sends the plain-text rendering of a report to one recipient
type Notifier struct {
	sender    Sender
	recipient string
	validator *validation.Validator
}

// NewNotifier creates a Notifier for recipient, a user or group JID
func NewNotifier(sender Sender, recipient string) (*Notifier, error) {
	v := validation.New()
	if appErr := v.ValidateRecipient(recipient); appErr != nil {
		return nil, appErr
	}
	return &Notifier{sender: sender, recipient: recipient, validator: v}, nil
}

// Name returns "whatsapp"
func (n *Notifier) Name() string { return "whatsapp" }

// Deliver renders msg as text and sends it
func (n *Notifier) Deliver(ctx context.Context, msg *slack.Message) error {
	text := n.validator.SanitizeMessage(msg.PlainText())
	if text == "" {
		return nil
	}

	if err := n.sender.EnsureConnected(ctx); err != nil {
		return fmt.Errorf("whatsapp not connected: %w", err)
	}
	return n.sender.SendText(ctx, n.recipient, text)
}
