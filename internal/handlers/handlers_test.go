package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nahidhasan98/netconf-relay/internal/config"
	"github.com/nahidhasan98/netconf-relay/internal/impact"
	"github.com/nahidhasan98/netconf-relay/internal/logger"
	"github.com/nahidhasan98/netconf-relay/internal/models"
	"github.com/nahidhasan98/netconf-relay/internal/pipeline"
	"github.com/nahidhasan98/netconf-relay/internal/report"
	"github.com/nahidhasan98/netconf-relay/internal/runner"
	"github.com/nahidhasan98/netconf-relay/internal/slack"
	"github.com/nahidhasan98/netconf-relay/internal/webhook"
)

const testSecret = "s3cret"

const sw1Push = `{
  "ref": "refs/heads/main",
  "compare": "",
  "repository": {"name": "switch-config", "full_name": "netops/switch-config", "html_url": "https://github.com/netops/switch-config"},
  "sender": {"login": "octocat", "url": "https://api.github.com/users/octocat"},
  "head_commit": {"id": "1111111111111111111111111111111111111111"},
  "commits": [
    {"id": "1111111111111111111111111111111111111111", "message": "Raise sw1 mtu", "url": "https://github.com/netops/switch-config/commit/1111111",
     "added": [], "modified": ["host_vars/sw1/x.yaml"]}
  ]
}`

type fakeRunner struct {
	calls  int
	limit  []string
	result *runner.Result
	err    error
}

func (f *fakeRunner) Run(_ context.Context, playbook, revision string, limit []string) (*runner.Result, error) {
	f.calls++
	f.limit = limit
	if f.result != nil {
		return f.result, f.err
	}
	return &runner.Result{Outcome: runner.Succeeded, Stage: runner.StageExecute, Revision: revision, Playbook: playbook, Limit: limit}, nil
}

type recordingNotifier struct {
	got []*slack.Message
}

func (r *recordingNotifier) Name() string { return "recorder" }

func (r *recordingNotifier) Deliver(_ context.Context, msg *slack.Message) error {
	r.got = append(r.got, msg)
	return nil
}

type countingProcessor struct {
	inner *pipeline.Pipeline
	calls int
}

func (c *countingProcessor) ProcessPush(ctx context.Context, push *models.PushNotification) *pipeline.Outcome {
	c.calls++
	return c.inner.ProcessPush(ctx, push)
}

type fixture struct {
	cfg      *config.Config
	runner   *fakeRunner
	notifier *recordingNotifier
	proc     *countingProcessor
	handler  *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.GitHub.WebhookSecret = testSecret
	cfg.Repository.URL = "https://github.com/netops/switch-config.git"

	f := &fixture{cfg: &cfg, runner: &fakeRunner{}, notifier: &recordingNotifier{}}
	p := pipeline.New(cfg.Automation.Playbook, pipeline.Deps{
		Analyzer: impact.NewAnalyzer(cfg.Impact.GlobalPath, cfg.Impact.TargetPrefix),
		Runner:   f.runner,
		Builder:  report.NewBuilder(cfg.Slack.SuccessColor, cfg.Slack.FailureColor),
		Notifier: f.notifier,
	})
	f.proc = &countingProcessor{inner: p}
	f.handler = New(f.cfg, f.proc, logger.Nop())
	return f
}

func (f *fixture) do(event, body string, sign bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/hook/push", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if event != "" {
		req.Header.Set("X-GitHub-Event", event)
	}
	req.Header.Set("X-GitHub-Delivery", "72d3162e-cc78-11e3-81ab-4c9367dc0958")
	if sign {
		req.Header.Set(webhook.SignatureHeader, webhook.SignatureValue([]byte(body), testSecret))
	}
	rec := httptest.NewRecorder()
	f.handler.PushHook(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestPushTargetedEndToEnd(t *testing.T) {
	f := newFixture(t)
	rec := f.do("push", sw1Push, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != `{"status":"success"}` {
		t.Errorf("body = %s", rec.Body.String())
	}
	if f.runner.calls != 1 || len(f.runner.limit) != 1 || f.runner.limit[0] != "sw1" {
		t.Fatalf("unexpected run: calls=%d limit=%v", f.runner.calls, f.runner.limit)
	}
	if len(f.notifier.got) != 1 {
		t.Fatalf("expected one report, got %d", len(f.notifier.got))
	}

	msg := f.notifier.got[0]
	text := msg.PlainText()
	if len(msg.Attachments) != 1 || msg.Attachments[0].Color != report.DefaultSuccessColor {
		t.Errorf("expected only a success banner, got %+v", msg.Attachments)
	}
	if !strings.Contains(text, "Automation run succeeded") {
		t.Errorf("missing success banner:\n%s", text)
	}
	if strings.Count(text, "https://github.com/netops/switch-config/commit/") != 1 {
		t.Errorf("expected one commit line:\n%s", text)
	}
	if !strings.Contains(text, "*Targets with configuration changes*\n• `sw1`") {
		t.Errorf("missing targets section:\n%s", text)
	}
	if strings.Contains(text, "Error output") {
		t.Errorf("unexpected stderr block:\n%s", text)
	}
}

func TestPushMissingSignature(t *testing.T) {
	f := newFixture(t)
	rec := f.do("push", sw1Push, false)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if decode(t, rec)["code"] != "MISSING_SIGNATURE" {
		t.Errorf("body = %s", rec.Body.String())
	}
	if f.proc.calls != 0 || f.runner.calls != 0 || len(f.notifier.got) != 0 {
		t.Error("nothing may run without a signature")
	}
}

func TestPushBadSignature(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/hook/push", strings.NewReader(sw1Push))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set(webhook.SignatureHeader, webhook.SignatureValue([]byte(sw1Push+" "), testSecret))
	rec := httptest.NewRecorder()
	f.handler.PushHook(rec, req)

	if rec.Code != http.StatusBadRequest || decode(t, rec)["code"] != "INVALID_SIGNATURE" {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if f.proc.calls != 0 {
		t.Error("pipeline must not run")
	}
}

func TestPushUnsupportedAlgorithm(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/hook/push", strings.NewReader(sw1Push))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set(webhook.SignatureHeader, "sha1=abc")
	rec := httptest.NewRecorder()
	f.handler.PushHook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPushSecretNotConfigured(t *testing.T) {
	f := newFixture(t)
	f.cfg.GitHub.WebhookSecret = ""
	rec := f.do("push", sw1Push, true)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if decode(t, rec)["code"] != "CONFIGURATION_ERROR" {
		t.Errorf("body = %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), testSecret) {
		t.Error("response must not leak the secret")
	}
}

func TestPushVerificationDisabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.GitHub.VerifySignature = false
	rec := f.do("push", sw1Push, false)

	if rec.Code != http.StatusOK || f.runner.calls != 1 {
		t.Fatalf("status = %d runs = %d", rec.Code, f.runner.calls)
	}
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	rec := f.do("ping", `{"zen": "Keep it logically awesome.", "hook_id": 1}`, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if decode(t, rec)["status"] != "pong" {
		t.Errorf("body = %s", rec.Body.String())
	}
	if f.proc.calls != 0 || f.runner.calls != 0 {
		t.Error("ping must not be analysed or run")
	}
}

func TestPingRequiresSignature(t *testing.T) {
	f := newFixture(t)
	if rec := f.do("ping", `{}`, false); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestEventClassification(t *testing.T) {
	for _, event := range []string{"", "issues", "pull_request"} {
		t.Run("event="+event, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(event, sw1Push, true)
			if rec.Code != http.StatusBadRequest || decode(t, rec)["code"] != "UNSUPPORTED_EVENT" {
				t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
			}
			if f.proc.calls != 0 {
				t.Error("pipeline must not run")
			}
		})
	}
}

func TestPushNoImpact(t *testing.T) {
	f := newFixture(t)
	body := strings.Replace(sw1Push, "host_vars/sw1/x.yaml", "README.md", 1)
	rec := f.do("push", body, true)

	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "success" {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if f.runner.calls != 0 || len(f.notifier.got) != 0 {
		t.Error("no-impact push must not run or notify")
	}
}

func TestPushFailedRunStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.runner.result = &runner.Result{Outcome: runner.Failed, Stage: runner.StageExecute, Stderr: "fatal: unreachable"}
	f.runner.err = &runner.ExecutionError{ExitCode: 2}

	rec := f.do("push", sw1Push, true)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"success"}` {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if len(f.notifier.got) != 1 || !strings.Contains(f.notifier.got[0].PlainText(), "fatal: unreachable") {
		t.Error("failure must be reported through the chat report")
	}
}

func TestPushInvalidJSON(t *testing.T) {
	f := newFixture(t)
	rec := f.do("push", `{"commits": [`, true)
	body := decode(t, rec)
	if rec.Code != http.StatusBadRequest || body["code"] != "INVALID_REQUEST" {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if body["error"] != "Invalid push payload" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestPushRepositoryNotConfigured(t *testing.T) {
	f := newFixture(t)
	f.cfg.Repository.URL = ""
	rec := f.do("push", sw1Push, true)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.proc.calls != 0 {
		t.Error("pipeline must not run")
	}
}

func TestPushBodyTooLarge(t *testing.T) {
	f := newFixture(t)
	f.cfg.Server.MaxBodyBytes = 16
	rec := f.do("push", sw1Push, true)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	body := decode(t, rec)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("status = %d body %v", rec.Code, body)
	}
	if _, ok := body["notifiers"]; ok {
		t.Error("plain health check must not include details")
	}
}

func TestHealthCheckDetailed(t *testing.T) {
	f := newFixture(t)
	h := New(f.cfg, f.proc, logger.Nop(),
		WithNotifiers([]string{"slack", "whatsapp"}),
		WithWhatsAppStatus(func() map[string]bool { return map[string]bool{"connected": true} }))

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz?detailed=true", nil))

	body := decode(t, rec)
	if body["signature_verification"] != true {
		t.Errorf("body = %v", body)
	}
	if n, _ := body["notifiers"].([]any); len(n) != 2 {
		t.Errorf("notifiers = %v", body["notifiers"])
	}
	if wa, _ := body["whatsapp"].(map[string]any); wa["connected"] != true {
		t.Errorf("whatsapp = %v", body["whatsapp"])
	}
}
