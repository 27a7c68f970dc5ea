// Package notify defines how status reports leave the relay.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/nahidhasan98/netconf-relay/internal/slack"
)

// Notifier delivers a status report
type Notifier interface {
	Name() string
	Deliver(ctx context.Context, msg *slack.Message) error
}

// Nop discards every report. It stands in when no chat URL is configured.
type Nop struct{}

// Name returns "none"
func (Nop) Name() string { return "none" }

// Deliver does nothing
func (Nop) Deliver(context.Context, *slack.Message) error { return nil }

// Multi fans a report out to several notifiers
type Multi []Notifier

// New returns the notifier for the given channels: Nop when there are none,
// the single notifier when there is one, Multi otherwise.
func New(notifiers ...Notifier) Notifier {
	var active Multi
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		if _, ok := n.(Nop); ok {
			continue
		}
		active = append(active, n)
	}

	switch len(active) {
	case 0:
		return Nop{}
	case 1:
		return active[0]
	default:
		return active
	}
}

// Name returns "multi"
func (m Multi) Name() string { return "multi" }

// Names lists the channels behind n
func Names(n Notifier) []string {
	if multi, ok := n.(Multi); ok {
		names := make([]string, 0, len(multi))
		for _, c := range multi {
			names = append(names, c.Name())
		}
		return names
	}
	if _, ok := n.(Nop); ok {
		return []string{}
	}
	return []string{n.Name()}
}

// Deliver sends msg to every notifier. One failure does not stop the rest;
// all failures are joined.
func (m Multi) Deliver(ctx context.Context, msg *slack.Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Deliver(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
