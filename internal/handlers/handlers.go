package handlers

import (
	"context"

	"github.com/nahidhasan98/netconf-relay/internal/config"
	"github.com/nahidhasan98/netconf-relay/internal/logger"
	"github.com/nahidhasan98/netconf-relay/internal/models"
	"github.com/nahidhasan98/netconf-relay/internal/pipeline"
)

// Processor handles an authenticated, parsed push
type Processor interface {
	ProcessPush(ctx context.Context, push *models.PushNotification) *pipeline.Outcome
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	cfg            *config.Config
	processor      Processor
	log            *logger.Logger
	notifiers      []string
	whatsAppStatus func() map[string]bool
}

// Option customizes a Handler
type Option func(*Handler)

// WithNotifiers lists the delivery channels in detailed health output
func WithNotifiers(names []string) Option {
	return func(h *Handler) { h.notifiers = names }
}

// WithWhatsAppStatus reports the WhatsApp link in detailed health output
func WithWhatsAppStatus(fn func() map[string]bool) Option {
	return func(h *Handler) { h.whatsAppStatus = fn }
}

// New creates a new handler instance
func New(cfg *config.Config, processor Processor, log *logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		cfg:       cfg,
		processor: processor,
		log:       log,
		notifiers: []string{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
