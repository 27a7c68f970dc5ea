package report

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nahidhasan98/netconf-relay/internal/impact"
	"github.com/nahidhasan98/netconf-relay/internal/models"
	"github.com/nahidhasan98/netconf-relay/internal/runner"
	"github.com/nahidhasan98/netconf-relay/internal/slack"
)

func testPush() *models.PushNotification {
	return &models.PushNotification{
		Repository: models.Repository{Name: "switch-config", FullName: "netops/switch-config"},
		Sender:     &models.User{Login: "octocat", ProfileURL: "https://github.com/octocat"},
		CompareURL: "https://github.com/netops/switch-config/compare/aaa...bbb",
		Commits: []models.Commit{
			{ID: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Message: "Add sw1\n\ndetails", URL: "https://github.com/c/aaa"},
			{ID: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Message: "Tune sw2", URL: "https://github.com/c/bbb"},
		},
	}
}

func allText(msg *slack.Message) string {
	var sb strings.Builder
	write := func(blocks []slack.Block) {
		for _, b := range blocks {
			if b.Text != nil {
				sb.WriteString(b.Text.Text + "\n")
			}
			for _, f := range b.Fields {
				sb.WriteString(f.Text + "\n")
			}
		}
	}
	write(msg.Blocks)
	for _, a := range msg.Attachments {
		write(a.Blocks)
	}
	return sb.String()
}

func blockCount(msg *slack.Message) int {
	n := len(msg.Blocks)
	for _, a := range msg.Attachments {
		n += len(a.Blocks)
	}
	return n
}

func TestTruncate(t *testing.T) {
	short := strings.Repeat("a", MaxExcerpt)
	if Truncate(short) != short {
		t.Error("text at the limit must be left untouched")
	}

	long := strings.Repeat("b", MaxExcerpt+1)
	got := Truncate(long)
	if got != strings.Repeat("b", MaxExcerpt)+Elision {
		t.Errorf("unexpected truncation, len %d", len(got))
	}
	if Truncate(got) != got {
		t.Error("truncation must be idempotent")
	}

	// raw input that merely ends like a truncated excerpt is still cut
	lookalike := strings.Repeat("c", MaxExcerpt+5-utf8.RuneCountInString(Elision)) + Elision
	got = Truncate(lookalike)
	if got != string([]rune(lookalike)[:MaxExcerpt])+Elision {
		t.Errorf("lookalike input not truncated, %d characters", utf8.RuneCountInString(got))
	}

	shortLookalike := "diff" + Elision
	if Truncate(shortLookalike) != shortLookalike {
		t.Error("text under the limit must be left untouched")
	}

	multi := strings.Repeat("é", MaxExcerpt+5)
	got = Truncate(multi)
	body := strings.TrimSuffix(got, Elision)
	if utf8.RuneCountInString(body) != MaxExcerpt || !utf8.ValidString(got) {
		t.Errorf("expected %d characters, got %d", MaxExcerpt, utf8.RuneCountInString(body))
	}
}

func TestBuildTargetedSuccess(t *testing.T) {
	b := NewBuilder("", "")
	push := testPush()
	push.Commits = push.Commits[:1]

	msg := b.Build(Input{
		Push:   push,
		Impact: impact.Result{Targets: []string{"sw1"}},
		Run:    &runner.Result{Outcome: runner.Succeeded, Stage: runner.StageExecute, Revision: push.Commits[0].ID, Playbook: "site.yml", Limit: []string{"sw1"}},
	})

	if msg.Blocks[0].Type != slack.BlockHeader || msg.Blocks[0].Text.Text != "Push to netops/switch-config by octocat" {
		t.Errorf("unexpected header %+v", msg.Blocks[0].Text)
	}

	text := allText(msg)
	if strings.Count(text, "(<https://github.com/c/") != 1 {
		t.Errorf("expected one commit line:\n%s", text)
	}
	if !strings.Contains(text, "Add sw1 (<https://github.com/c/aaa|aaaaaaaaaa>)") {
		t.Errorf("unexpected commit line:\n%s", text)
	}
	if !strings.Contains(text, "*Targets with configuration changes*\n• `sw1`") {
		t.Errorf("missing targets section:\n%s", text)
	}
	if strings.Contains(text, "Global configuration changed") {
		t.Error("unexpected global notice")
	}

	if len(msg.Attachments) != 1 {
		t.Fatalf("expected only the banner attachment, got %d", len(msg.Attachments))
	}
	if msg.Attachments[0].Color != DefaultSuccessColor {
		t.Errorf("banner colour = %q", msg.Attachments[0].Color)
	}
	if !strings.Contains(text, "Automation run succeeded") {
		t.Error("missing success banner")
	}
	if !strings.HasSuffix(msg.Text, "automation run succeeded") {
		t.Errorf("unexpected fallback text %q", msg.Text)
	}
}

func TestBuildCommitOrder(t *testing.T) {
	text := allText(NewBuilder("", "").Build(Input{Push: testPush()}))
	first := strings.Index(text, "Add sw1")
	second := strings.Index(text, "Tune sw2")
	if first < 0 || second < 0 || first > second {
		t.Errorf("commits must keep delivery order:\n%s", text)
	}
}

func TestBuildGlobal(t *testing.T) {
	msg := NewBuilder("", "").Build(Input{
		Push:   testPush(),
		Impact: impact.Result{Global: true, Targets: []string{"sw1"}},
		Run:    &runner.Result{Outcome: runner.Succeeded},
	})
	text := allText(msg)
	if !strings.Contains(text, "Global configuration changed") {
		t.Error("missing global notice")
	}
	if !strings.Contains(text, "all targets") {
		t.Error("unrestricted run should show all targets in the banner")
	}
}

func TestBuildNoRunHasNoBanner(t *testing.T) {
	msg := NewBuilder("", "").Build(Input{Push: testPush(), Impact: impact.Result{Targets: []string{"sw1"}}})
	if len(msg.Attachments) != 0 {
		t.Errorf("expected no attachments, got %d", len(msg.Attachments))
	}
	if strings.Contains(msg.Text, "automation run") {
		t.Errorf("fallback text must not mention a run: %q", msg.Text)
	}
}

func TestBuildFailureStderrBlock(t *testing.T) {
	b := NewBuilder("#00ff00", "#ff0000")
	base := Input{Push: testPush(), Impact: impact.Result{Targets: []string{"sw1"}}}

	withStderr := base
	withStderr.Run = &runner.Result{Outcome: runner.Failed, Stage: runner.StageExecute, Stderr: "ERROR! unreachable"}
	noStderr := base
	noStderr.Run = &runner.Result{Outcome: runner.Failed, Stage: runner.StageExecute}

	a := b.Build(withStderr)
	c := b.Build(noStderr)

	if blockCount(a)-blockCount(c) != 1 {
		t.Errorf("expected block-count difference of one, got %d vs %d", blockCount(a), blockCount(c))
	}
	if a.Attachments[0].Color != "#ff0000" || c.Attachments[0].Color != "#ff0000" {
		t.Error("failure banner must use the failure colour")
	}
	if !strings.Contains(allText(a), "ERROR! unreachable") {
		t.Error("stderr missing from report")
	}
	if !strings.Contains(allText(c), "Automation run failed") {
		t.Error("missing failure banner")
	}
}

func TestBuildSuccessIgnoresStderr(t *testing.T) {
	msg := NewBuilder("", "").Build(Input{
		Push: testPush(),
		Run:  &runner.Result{Outcome: runner.Succeeded, Stderr: "[WARNING]: deprecated"},
	})
	if strings.Contains(allText(msg), "deprecated") {
		t.Error("stderr of a successful run must not be reported")
	}
}

func TestBuildSyncFailure(t *testing.T) {
	msg := NewBuilder("", "").Build(Input{
		Push: testPush(),
		Run:  &runner.Result{Outcome: runner.Failed, Stage: runner.StageSync, Stderr: "fatal: reference is not a tree"},
	})
	if !strings.Contains(allText(msg), "could not be synchronized") {
		t.Error("sync failure should say so")
	}
}

func TestBuildCompareLink(t *testing.T) {
	push := testPush()
	with := allText(NewBuilder("", "").Build(Input{Push: push}))
	if !strings.Contains(with, "<https://github.com/netops/switch-config/compare/aaa...bbb|View changes>") {
		t.Errorf("missing compare link:\n%s", with)
	}

	push.CompareURL = ""
	without := allText(NewBuilder("", "").Build(Input{Push: push}))
	if strings.Contains(without, "View changes") {
		t.Error("compare link must be omitted without a compare URL")
	}
}

func TestBuildDiffExcerpt(t *testing.T) {
	diff := strings.Repeat("x", MaxExcerpt+200)
	msg := NewBuilder("", "").Build(Input{Push: testPush(), Diff: diff})
	text := allText(msg)
	if !strings.Contains(text, Truncate(diff)) {
		t.Error("diff excerpt must be truncated")
	}
	if strings.Contains(text, strings.Repeat("x", MaxExcerpt+1)) {
		t.Error("diff excerpt exceeds the limit")
	}
}

func TestBuildWithoutSender(t *testing.T) {
	push := testPush()
	push.Sender = nil
	msg := NewBuilder("", "").Build(Input{Push: push})
	if msg.Blocks[0].Text.Text != "Push to netops/switch-config" {
		t.Errorf("unexpected header %q", msg.Blocks[0].Text.Text)
	}
}

func TestBuildNilPush(t *testing.T) {
	msg := NewBuilder("", "").Build(Input{})
	if len(msg.Blocks) == 0 || msg.Text == "" {
		t.Error("expected a header and fallback text")
	}
}

func TestChunkLines(t *testing.T) {
	lines := []string{strings.Repeat("a", 6), strings.Repeat("b", 6), "c"}
	chunks := chunkLines(lines, 13)
	if len(chunks) != 2 || chunks[0] != "aaaaaa\nbbbbbb" || chunks[1] != "c" {
		t.Errorf("unexpected chunks %q", chunks)
	}
}

func TestBuildEscapesUserText(t *testing.T) {
	push := testPush()
	push.Commits = []models.Commit{
		{ID: "cccccccccccccccccccccccccccccccccccccccc", Message: "Ping <!channel> & see <https://evil.example|docs>", URL: "https://github.com/c/ccc"},
	}

	msg := NewBuilder("", "").Build(Input{
		Push:   push,
		Impact: impact.Result{Targets: []string{"sw<1>"}},
		Run:    &runner.Result{Outcome: runner.Succeeded, Stage: runner.StageExecute, Limit: []string{"sw<1>"}, Playbook: "a&b.yml"},
	})
	text := allText(msg)

	for _, raw := range []string{"<!channel>", "<https://evil.example|docs>", "`sw<1>`", "a&b.yml"} {
		if strings.Contains(text, raw) {
			t.Errorf("unescaped %q in report:\n%s", raw, text)
		}
	}
	for _, want := range []string{"Ping &lt;!channel&gt; &amp; see", "• `sw&lt;1&gt;`", "a&amp;b.yml"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in report:\n%s", want, text)
		}
	}
	if !strings.Contains(text, "(<https://github.com/c/ccc|cccccccccc>)") {
		t.Error("commit link must stay a link")
	}
}
