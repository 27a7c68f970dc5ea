// Package whatsapp delivers status reports over a linked WhatsApp device.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/nahidhasan98/netconf-relay/internal/config"
	"github.com/nahidhasan98/netconf-relay/internal/logger"
)

const (
	qrTimeout     = 60 * time.Second
	qrAttempts    = 5
	qrRetryDelay  = 5 * time.Second
	settleTimeout = 2 * time.Second
)

// Backoff controls automatic reconnection
type Backoff struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// Next returns the interval that follows d
func (b Backoff) Next(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * b.Multiplier)
	if next > b.MaxInterval {
		return b.MaxInterval
	}
	return next
}

// DefaultBackoff is used by Open
var DefaultBackoff = Backoff{
	MaxRetries:      10,
	InitialInterval: 5 * time.Second,
	MaxInterval:     5 * time.Minute,
	Multiplier:      1.5,
}

// Status describes the link to WhatsApp
type Status struct {
	Connected    bool `json:"connected"`
	HasSession   bool `json:"has_session"`
	Reconnecting bool `json:"reconnecting"`
}

// Map returns the status for health responses
func (s Status) Map() map[string]bool {
	return map[string]bool{
		"connected":    s.Connected,
		"has_session":  s.HasSession,
		"reconnecting": s.Reconnecting,
	}
}

// Client wraps a whatsmeow client whose session lives in a SQL store
type Client struct {
	wa      *whatsmeow.Client
	backoff Backoff
	qrOut   io.Writer
	log     *logger.Logger

	mu              sync.RWMutex
	connected       bool
	cancelReconnect context.CancelFunc
}

// Open loads (or creates) the device session from the configured database
func Open(ctx context.Context, cfg config.WhatsAppConfig, log *logger.Logger) (*Client, error) {
	container, err := sqlstore.New(ctx, cfg.DBDriver, cfg.DBDSN, waLog.Stdout("Database", cfg.LogLevel, true))
	if err != nil {
		return nil, fmt.Errorf("open whatsapp session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load whatsapp device: %w", err)
	}

	// name shown under Linked Devices
	store.SetOSInfo(cfg.DeviceName, [3]uint32{0, 1, 0})
	device.Platform = cfg.DeviceName

	c := &Client{
		wa:      whatsmeow.NewClient(device, waLog.Stdout("Client", cfg.LogLevel, true)),
		backoff: DefaultBackoff,
		qrOut:   os.Stdout,
		log:     log.With("component", "whatsapp"),
	}
	c.wa.AddEventHandler(c.handleEvent)

	return c, nil
}

// Start connects with the stored session or, without one, starts QR pairing
// in the background and returns.
func (c *Client) Start(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		c.log.Info("No WhatsApp session found, starting QR pairing")
		go c.pair(ctx)
		return nil
	}

	c.log.Info("WhatsApp session found, connecting")
	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("connect whatsapp: %w", err)
	}

	time.Sleep(settleTimeout)
	if !c.wa.IsConnected() {
		return fmt.Errorf("whatsapp connection not established")
	}

	c.setConnected(true)
	c.log.Infof("Connected to WhatsApp as %s", c.wa.Store.ID.String())
	return nil
}

// Close stops reconnection and disconnects
func (c *Client) Close() {
	c.mu.Lock()
	if c.cancelReconnect != nil {
		c.cancelReconnect()
		c.cancelReconnect = nil
	}
	c.connected = false
	c.mu.Unlock()

	c.wa.Disconnect()
	c.log.Info("Disconnected from WhatsApp")
}

// IsConnected reports whether messages can be sent right now
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.wa.IsConnected() && c.wa.Store.ID != nil
}

// EnsureConnected reconnects when the link is down
func (c *Client) EnsureConnected(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}
	if c.wa.Store.ID == nil {
		return fmt.Errorf("whatsapp device is not paired")
	}
	return c.Start(ctx)
}

// Status returns the current link state
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hasSession := c.wa.Store.ID != nil
	return Status{
		Connected:    c.connected && c.wa.IsConnected() && hasSession,
		HasSession:   hasSession,
		Reconnecting: c.cancelReconnect != nil,
	}
}

// SendText sends a plain conversation message to jid
func (c *Client) SendText(ctx context.Context, jid, text string) error {
	to, err := types.ParseJID(jid)
	if err != nil {
		return fmt.Errorf("invalid JID %s: %w", jid, err)
	}

	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := c.wa.SendMessage(ctx, to, msg); err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	return nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		c.mu.Lock()
		c.connected = true
		if c.cancelReconnect != nil {
			c.cancelReconnect()
			c.cancelReconnect = nil
		}
		c.mu.Unlock()
		c.log.Info("WhatsApp connected")

	case *events.Disconnected:
		c.mu.Lock()
		c.connected = false
		idle := c.cancelReconnect == nil
		c.mu.Unlock()
		c.log.Warn("WhatsApp disconnected")
		if idle {
			go c.reconnect()
		}

	case *events.LoggedOut:
		c.setConnected(false)
		c.log.Warnf("WhatsApp session logged out (reason %v), pair the device again", v.Reason)

	case *events.StreamError:
		c.log.Errorf("WhatsApp stream error: %v", v)
	}
}

func (c *Client) reconnect() {
	c.mu.Lock()
	if c.connected || c.cancelReconnect != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelReconnect = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.cancelReconnect = nil
		c.mu.Unlock()
	}()

	interval := c.backoff.InitialInterval
	for attempt := 1; attempt <= c.backoff.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if c.wa.IsConnected() {
			c.setConnected(true)
			return
		}

		c.log.Infof("WhatsApp reconnection attempt %d/%d", attempt, c.backoff.MaxRetries)
		if err := c.wa.Connect(); err != nil {
			c.log.WarnErr("WhatsApp reconnection failed", err)
			interval = c.backoff.Next(interval)
			continue
		}
		return
	}

	c.log.Error("All WhatsApp reconnection attempts failed", nil)
}

// pair runs QR pairing until it succeeds, attempts run out or ctx ends
func (c *Client) pair(ctx context.Context) {
	for attempt := 1; attempt <= qrAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if attempt > 1 {
			c.log.Infof("Generating new QR code (attempt %d/%d)", attempt, qrAttempts)
			select {
			case <-ctx.Done():
				return
			case <-time.After(qrRetryDelay):
			}
		}

		paired, cancelled := c.pairOnce(ctx)
		if cancelled {
			return
		}
		if paired {
			c.setConnected(true)
			c.log.Info("WhatsApp pairing successful")
			return
		}
	}

	c.log.Error("WhatsApp pairing failed after multiple attempts", nil)
}

func (c *Client) pairOnce(ctx context.Context) (paired, cancelled bool) {
	qrCtx, cancel := context.WithTimeout(ctx, qrTimeout)
	defer cancel()

	qrChan, err := c.wa.GetQRChannel(qrCtx)
	if err != nil {
		c.log.WarnErr("Failed to get QR channel", err)
		return false, false
	}

	if !c.wa.IsConnected() {
		if err := c.wa.Connect(); err != nil {
			c.log.WarnErr("Failed to connect for pairing", err)
			return false, false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return false, true
		case <-qrCtx.Done():
			c.log.Warn("QR code timed out without being scanned")
			return false, false
		case evt, ok := <-qrChan:
			if !ok {
				return false, ctx.Err() != nil
			}
			switch evt.Event {
			case "code":
				c.log.Info("Scan the QR code with WhatsApp > Linked Devices > Link a Device")
				qrterminal.GenerateWithConfig(evt.Code, qrterminal.Config{
					Level:      qrterminal.M,
					Writer:     c.qrOut,
					HalfBlocks: true,
					QuietZone:  1,
				})
			case "success":
				return true, false
			case "timeout":
				c.log.Warn("QR code expired")
				return false, false
			default:
				c.log.Infof("Pairing event: %s", evt.Event)
			}
		}
	}
}
