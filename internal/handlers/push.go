package handlers

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/google/go-github/v70/github"

	"github.com/nahidhasan98/netconf-relay/internal/errors"
	"github.com/nahidhasan98/netconf-relay/internal/models"
	"github.com/nahidhasan98/netconf-relay/internal/webhook"
)

// PushHook handles GitHub webhook deliveries on /hook/push.
// Only authentication, classification and configuration problems produce a
// non-2xx status; everything after that is reported through the chat report.
func (h *Handler) PushHook(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r).With("delivery_id", github.DeliveryID(r))

	// Read the raw body; the signature covers these exact bytes
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.Server.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			h.writeAppError(w, r, errors.New(errors.ErrCodePayloadTooLarge, "Request body too large"))
			return
		}
		h.writeAppError(w, r, errors.InvalidRequest("Failed to read request body: "+err.Error()))
		return
	}

	if appErr := h.authenticate(r, body); appErr != nil {
		h.writeAppError(w, r, appErr)
		return
	}

	event := github.WebHookType(r)
	switch event {
	case models.EventPing:
		log.Info("Ping received")
		h.writeJSON(w, &models.StatusResponse{Status: "pong"}, http.StatusOK)
		return
	case models.EventPush:
	default:
		h.writeAppError(w, r, errors.UnsupportedEvent(event))
		return
	}

	if h.cfg.Repository.URL == "" {
		h.writeAppError(w, r, errors.ConfigurationError("Repository URL"))
		return
	}

	push, err := models.ParsePush(body)
	if err != nil {
		h.writeAppError(w, r, errors.Wrapf(err, errors.ErrCodeInvalidRequest, "Invalid %s payload", event))
		return
	}

	log.With("repository", push.Repository.DisplayName()).
		With("commits", len(push.Commits)).
		Info("Push received")

	// The automation run must not die with the caller's connection
	outcome := h.processor.ProcessPush(context.WithoutCancel(r.Context()), push)

	response := &models.StatusResponse{Status: "success"}
	if outcome != nil && outcome.Skipped() {
		response.Message = "no managed configuration changed"
	}
	h.writeJSON(w, response, http.StatusOK)
}

// authenticate verifies the request signature unless verification is
// explicitly disabled.
func (h *Handler) authenticate(r *http.Request, body []byte) *errors.AppError {
	if !h.cfg.GitHub.VerifySignature {
		h.requestLogger(r).Warn("Signature verification is disabled, accepting unauthenticated request")
		return nil
	}

	err := webhook.Verify(r.Header, body, h.cfg.GitHub.WebhookSecret)
	if err == nil {
		return nil
	}

	if webhook.IsConfigurationError(err) {
		return errors.ConfigurationError("Webhook secret")
	}

	var sigErr *webhook.SignatureError
	if stderrors.As(err, &sigErr) && sigErr.Kind == webhook.ErrSignatureMismatch {
		h.requestLogger(r).
			With("supplied", sigErr.Supplied).
			With("computed", sigErr.Computed).
			Error("Webhook signature mismatch", err)
	}

	if stderrors.Is(err, webhook.ErrMissingHeader) {
		return errors.MissingSignature(webhook.SignatureHeader)
	}
	return errors.InvalidSignature(err)
}
