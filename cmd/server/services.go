package main

import (
	"context"
	"fmt"

	"github.com/nahidhasan98/netconf-relay/internal/compare"
	"github.com/nahidhasan98/netconf-relay/internal/config"
	"github.com/nahidhasan98/netconf-relay/internal/impact"
	"github.com/nahidhasan98/netconf-relay/internal/logger"
	"github.com/nahidhasan98/netconf-relay/internal/notify"
	"github.com/nahidhasan98/netconf-relay/internal/pipeline"
	"github.com/nahidhasan98/netconf-relay/internal/report"
	"github.com/nahidhasan98/netconf-relay/internal/runner"
	"github.com/nahidhasan98/netconf-relay/internal/slack"
	"github.com/nahidhasan98/netconf-relay/internal/telemetry"
	"github.com/nahidhasan98/netconf-relay/internal/whatsapp"
)

// services holds everything built from the configuration
type services struct {
	pipeline  *pipeline.Pipeline
	notifier  notify.Notifier
	waClient  *whatsapp.Client
	telemetry telemetry.ShutdownFunc
}

// buildServices wires the pipeline. skipSync runs against the working copy
// without fetching.
func buildServices(ctx context.Context, cfg *config.Config, log *logger.Logger, skipSync bool) (*services, error) {
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	svc := &services{telemetry: shutdown}

	var notifiers []notify.Notifier
	if cfg.Slack.WebhookURL != "" {
		notifiers = append(notifiers, slack.NewNotifier(cfg.Slack.WebhookURL, telemetry.HTTPClient(cfg.Slack.Timeout)))
	} else {
		log.Warn("SLACK_WEBHOOK_URL is not set, Slack delivery is disabled")
	}

	if cfg.WhatsApp.Enabled {
		svc.waClient, err = whatsapp.Open(ctx, cfg.WhatsApp, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		waNotifier, err := whatsapp.NewNotifier(svc.waClient, cfg.WhatsApp.Recipient)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp notifier: %w", err)
		}
		notifiers = append(notifiers, waNotifier)
	}
	svc.notifier = notify.New(notifiers...)

	run := runner.New(runner.Options{
		RepoURL:   cfg.Repository.URL,
		RepoPath:  cfg.Repository.RepoPath(),
		RunnerBin: cfg.Automation.RunnerBin,
		GitBin:    cfg.Automation.GitBin,
		SkipSync:  skipSync,
	}, nil, log)

	svc.pipeline = pipeline.New(cfg.Automation.Playbook, pipeline.Deps{
		Analyzer: impact.NewAnalyzer(cfg.Impact.GlobalPath, cfg.Impact.TargetPrefix),
		Runner:   run,
		Fetcher:  compare.NewFetcher(telemetry.HTTPClient(cfg.Diff.Timeout)),
		Builder:  report.NewBuilder(cfg.Slack.SuccessColor, cfg.Slack.FailureColor),
		Notifier: svc.notifier,
		Metrics:  metrics,
		Log:      log,
	})

	return svc, nil
}

// close flushes telemetry and drops the WhatsApp link
func (s *services) close(ctx context.Context, log *logger.Logger) {
	if s.waClient != nil {
		s.waClient.Close()
	}
	if err := s.telemetry(ctx); err != nil {
		log.Error("Error during telemetry shutdown", err)
	}
}
