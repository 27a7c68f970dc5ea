// Package pipeline processes an authenticated push from impact analysis to
// report delivery.
package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nahidhasan98/netconf-relay/internal/impact"
	"github.com/nahidhasan98/netconf-relay/internal/logger"
	"github.com/nahidhasan98/netconf-relay/internal/models"
	"github.com/nahidhasan98/netconf-relay/internal/notify"
	"github.com/nahidhasan98/netconf-relay/internal/report"
	"github.com/nahidhasan98/netconf-relay/internal/runner"
	"github.com/nahidhasan98/netconf-relay/internal/slack"
	"github.com/nahidhasan98/netconf-relay/internal/telemetry"
)

// Runner runs the automation against one revision
type Runner interface {
	Run(ctx context.Context, playbook, revision string, limit []string) (*runner.Result, error)
}

// DiffFetcher fetches the patch behind a compare URL
type DiffFetcher interface {
	Patch(ctx context.Context, compareURL string) (string, error)
}

// Deps are the collaborators of a Pipeline
type Deps struct {
	Analyzer *impact.Analyzer
	Runner   Runner
	Fetcher  DiffFetcher
	Builder  *report.Builder
	Notifier notify.Notifier
	Metrics  *telemetry.Metrics
	Log      *logger.Logger
}

// Outcome describes what happened to one push. Run is nil when the push
// had no impact.
type Outcome struct {
	RunID       string
	Impact      impact.Result
	Run         *runner.Result
	RunErr      error
	Report      *slack.Message
	DeliveryErr error
}

// Skipped reports whether no automation run took place
func (o *Outcome) Skipped() bool {
	return o.Run == nil
}

// Pipeline wires analysis, orchestration, reporting and delivery
type Pipeline struct {
	playbook string
	deps     Deps
}

// New creates a Pipeline running playbook for every impactful push
func New(playbook string, deps Deps) *Pipeline {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Builder == nil {
		deps.Builder = report.NewBuilder("", "")
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Metrics == nil {
		deps.Metrics, _ = telemetry.NewMetrics()
	}
	return &Pipeline{playbook: playbook, deps: deps}
}

// Notifier returns the configured notifier
func (p *Pipeline) Notifier() notify.Notifier {
	return p.deps.Notifier
}

// ProcessPush analyses push and, when it touches managed configuration,
// runs the playbook and delivers a report. Failures after this point are
// reported out of band and never returned.
func (p *Pipeline) ProcessPush(ctx context.Context, push *models.PushNotification) *Outcome {
	log := logger.FromContext(ctx, p.deps.Log).With("repository", push.Repository.DisplayName())

	res := p.deps.Analyzer.Analyze(push.Commits)
	p.deps.Metrics.Pushes.Add(ctx, 1, metric.WithAttributes(attribute.String("impact", res.Kind())))

	if res.None() {
		log.Infof("Push to %s touches no managed configuration, skipping", push.Branch())
		return &Outcome{Impact: res}
	}

	log.With("impact", res.Kind()).
		With("targets", strings.Join(res.Targets, ",")).
		Info("Push affects managed configuration")

	return p.execute(ctx, push, res, p.playbook, true)
}

// Trigger runs playbook for push without impact analysis. An empty limit
// runs against every target. The report is delivered only when deliver is
// set.
func (p *Pipeline) Trigger(ctx context.Context, push *models.PushNotification, playbook string, limit []string, deliver bool) *Outcome {
	if playbook == "" {
		playbook = p.playbook
	}
	res := impact.Result{Targets: limit}
	return p.execute(ctx, push, res, playbook, deliver)
}

func (p *Pipeline) execute(ctx context.Context, push *models.PushNotification, res impact.Result, playbook string, deliver bool) *Outcome {
	out := &Outcome{RunID: uuid.NewString(), Impact: res}
	revision := push.Revision()

	log := logger.FromContext(ctx, p.deps.Log).
		With("run_id", out.RunID).
		With("revision", revision)
	ctx = logger.WithContext(ctx, log)

	ctx, span := telemetry.StartPushSpan(ctx, out.RunID, push.Repository.DisplayName(), revision)
	defer span.End()

	out.Run, out.RunErr = p.orchestrate(ctx, playbook, revision, res.Limit())

	diff := p.fetchDiff(ctx, log, push.CompareURL)

	out.Report = p.deps.Builder.Build(report.Input{
		Push:   push,
		Impact: res,
		Run:    out.Run,
		Diff:   diff,
	})

	if deliver {
		out.DeliveryErr = p.deliver(ctx, log, out.Report)
	}

	return out
}

func (p *Pipeline) orchestrate(ctx context.Context, playbook, revision string, limit []string) (*runner.Result, error) {
	ctx, span := telemetry.StartStageSpan(ctx, "orchestrate",
		attribute.String("relay.playbook", playbook),
		attribute.StringSlice("relay.limit", limit))

	run, err := p.deps.Runner.Run(ctx, playbook, revision, limit)
	if run == nil {
		run = &runner.Result{Outcome: runner.Failed, Stage: runner.StageSync, Revision: revision, Playbook: playbook, Limit: limit}
		if err != nil {
			run.Stderr = err.Error()
		}
	}
	telemetry.EndSpan(span, err)

	attrs := metric.WithAttributes(
		attribute.String("outcome", string(run.Outcome)),
		attribute.String("stage", string(run.Stage)),
	)
	p.deps.Metrics.Runs.Add(ctx, 1, attrs)
	p.deps.Metrics.RunDuration.Record(ctx, run.Duration.Seconds(), attrs)

	return run, err
}

func (p *Pipeline) fetchDiff(ctx context.Context, log *logger.Logger, compareURL string) string {
	if p.deps.Fetcher == nil || compareURL == "" {
		return ""
	}

	ctx, span := telemetry.StartStageSpan(ctx, "fetch_diff")
	diff, err := p.deps.Fetcher.Patch(ctx, compareURL)
	telemetry.EndSpan(span, err)

	if err != nil {
		log.WarnErr("Could not fetch compare patch, reporting without diff", err)
		p.deps.Metrics.FetchFailures.Add(ctx, 1)
		return ""
	}
	return diff
}

func (p *Pipeline) deliver(ctx context.Context, log *logger.Logger, msg *slack.Message) error {
	ctx, span := telemetry.StartStageSpan(ctx, "deliver",
		attribute.String("relay.notifier", p.deps.Notifier.Name()))
	err := p.deps.Notifier.Deliver(ctx, msg)
	telemetry.EndSpan(span, err)

	if err != nil {
		var delErr *slack.DeliveryError
		if errors.As(err, &delErr) {
			log = log.With("status_code", delErr.StatusCode)
		}
		log.Error("Failed to deliver status report", err)
		p.deps.Metrics.DeliveryFailures.Add(ctx, 1)
		return err
	}

	log.Infof("Status report delivered via %s", p.deps.Notifier.Name())
	return nil
}
