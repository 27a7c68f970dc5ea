package whatsapp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nahidhasan98/netconf-relay/internal/slack"
)

type fakeSender struct {
	connectErr error
	sendErr    error
	to         string
	text       string
}

func (f *fakeSender) EnsureConnected(context.Context) error { return f.connectErr }

func (f *fakeSender) SendText(_ context.Context, jid, text string) error {
	f.to, f.text = jid, text
	return f.sendErr
}

const recipient = "120363025246125486@g.us"

func TestNewNotifierRejectsBadRecipient(t *testing.T) {
	if _, err := NewNotifier(&fakeSender{}, "not-a-jid"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestDeliverSendsPlainText(t *testing.T) {
	fs := &fakeSender{}
	n, err := NewNotifier(fs, recipient)
	if err != nil {
		t.Fatal(err)
	}

	msg := &slack.Message{Blocks: []slack.Block{
		slack.Header("Push to netops/switch-config"),
		slack.Section("Add sw1 (<https://github.com/c/1|aaaaaaaaaa>)"),
	}}
	if err := n.Deliver(context.Background(), msg); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if fs.to != recipient {
		t.Errorf("sent to %q", fs.to)
	}
	if !strings.HasPrefix(fs.text, "*Push to netops/switch-config*") || !strings.Contains(fs.text, "aaaaaaaaaa (https://github.com/c/1)") {
		t.Errorf("unexpected text %q", fs.text)
	}
}

func TestDeliverNotConnected(t *testing.T) {
	fs := &fakeSender{connectErr: errors.New("not paired")}
	n, _ := NewNotifier(fs, recipient)

	if err := n.Deliver(context.Background(), &slack.Message{Text: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if fs.text != "" {
		t.Error("nothing should be sent while disconnected")
	}
}

func TestDeliverEmptyMessage(t *testing.T) {
	fs := &fakeSender{connectErr: errors.New("unused")}
	n, _ := NewNotifier(fs, recipient)
	if err := n.Deliver(context.Background(), &slack.Message{}); err != nil {
		t.Fatalf("empty message should be skipped, got %v", err)
	}
}

func TestBackoffNext(t *testing.T) {
	b := Backoff{MaxInterval: 10 * time.Second, Multiplier: 2}
	if got := b.Next(3 * time.Second); got != 6*time.Second {
		t.Errorf("Next(3s) = %s", got)
	}
	if got := b.Next(8 * time.Second); got != 10*time.Second {
		t.Errorf("Next(8s) = %s, want cap", got)
	}
}

func TestStatusMap(t *testing.T) {
	m := Status{Connected: true, HasSession: true}.Map()
	if !m["connected"] || !m["has_session"] || m["reconnecting"] {
		t.Errorf("unexpected map %v", m)
	}
}
