// Package report turns a processed push into a Slack status message.
package report

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nahidhasan98/netconf-relay/internal/impact"
	"github.com/nahidhasan98/netconf-relay/internal/models"
	"github.com/nahidhasan98/netconf-relay/internal/runner"
	"github.com/nahidhasan98/netconf-relay/internal/slack"
)

const (
	// MaxExcerpt is the longest excerpt, in characters, put into a report.
	// Slack rejects text objects over 3000 characters; 1000 leaves room for
	// the surrounding markup.
	MaxExcerpt = 1000

	// Elision is appended to a truncated excerpt
	Elision = "\n... (truncated)"

	// ShortIDLength is the number of commit id characters shown
	ShortIDLength = 10

	// maxSectionText keeps a section below Slack's text limit
	maxSectionText = 3000

	maxHeaderText = 150
)

// Default banner colours
const (
	DefaultSuccessColor = "#05eb2f"
	DefaultFailureColor = "#f00216"
)

// Input is everything a report is built from. Run is nil when no automation
// run took place.
type Input struct {
	Push   *models.PushNotification
	Impact impact.Result
	Run    *runner.Result
	Diff   string
}

// Builder renders reports
type Builder struct {
	successColor string
	failureColor string
}

// NewBuilder creates a Builder. Empty colours fall back to the defaults.
func NewBuilder(successColor, failureColor string) *Builder {
	if successColor == "" {
		successColor = DefaultSuccessColor
	}
	if failureColor == "" {
		failureColor = DefaultFailureColor
	}
	return &Builder{successColor: successColor, failureColor: failureColor}
}

// Build renders the report. It never fails; missing input leaves sections
// out.
func (b *Builder) Build(in Input) *slack.Message {
	push := in.Push
	if push == nil {
		push = &models.PushNotification{}
	}

	msg := &slack.Message{Text: b.fallbackText(push, in.Run)}

	msg.Blocks = append(msg.Blocks, slack.Header(headline(push)))

	var links []string
	if push.Sender != nil && push.Sender.ProfileURL != "" {
		links = append(links, slack.Link(push.Sender.ProfileURL, "@"+push.Sender.Login))
	}
	if push.CompareURL != "" {
		links = append(links, slack.Link(push.CompareURL, "View changes"))
	}
	if len(links) > 0 {
		msg.Blocks = append(msg.Blocks, slack.Section(strings.Join(links, " | ")))
	}

	if lines := commitLines(push.Commits); len(lines) > 0 {
		msg.Blocks = append(msg.Blocks, slack.Divider())
		for _, text := range chunkLines(lines, maxSectionText) {
			msg.Blocks = append(msg.Blocks, slack.Section(text))
		}
	}

	if in.Impact.Global {
		msg.Blocks = append(msg.Blocks,
			slack.Section(":globe_with_meridians: *Global configuration changed*, the run covers every target"))
	}

	if len(in.Impact.Targets) > 0 {
		lines := []string{"*Targets with configuration changes*"}
		for _, t := range in.Impact.Targets {
			lines = append(lines, "• `"+slack.Escape(t)+"`")
		}
		for _, text := range chunkLines(lines, maxSectionText) {
			msg.Blocks = append(msg.Blocks, slack.Section(text))
		}
	}

	if in.Run != nil {
		msg.Attachments = append(msg.Attachments, b.banner(in.Run))
	}

	if diff := strings.TrimSpace(in.Diff); diff != "" {
		msg.Attachments = append(msg.Attachments, slack.Attachment{
			Blocks: []slack.Block{slack.Section(codeBlock(Truncate(diff)))},
		})
	}

	if in.Run != nil && !in.Run.Succeeded() && strings.TrimSpace(in.Run.Stderr) != "" {
		msg.Attachments = append(msg.Attachments, slack.Attachment{
			Color:  b.failureColor,
			Blocks: []slack.Block{slack.Section("*Error output*\n" + codeBlock(Truncate(in.Run.Stderr)))},
		})
	}

	return msg
}

func (b *Builder) banner(run *runner.Result) slack.Attachment {
	color := b.successColor
	status := ":white_check_mark: *Automation run succeeded*"
	switch {
	case run.Succeeded():
	case run.Stage == runner.StageSync:
		color = b.failureColor
		status = ":x: *Automation run failed*: the working copy could not be synchronized"
	default:
		color = b.failureColor
		status = ":x: *Automation run failed*"
	}

	scope := "all targets"
	if len(run.Limit) > 0 {
		scope = "`" + slack.Escape(strings.Join(run.Limit, ", ")) + "`"
	}

	fields := []string{"*Scope*\n" + scope}
	if run.Revision != "" {
		fields = append([]string{"*Revision*\n`" + shorten(run.Revision) + "`"}, fields...)
	}
	if run.Playbook != "" {
		fields = append(fields, "*Playbook*\n`"+slack.Escape(run.Playbook)+"`")
	}

	return slack.Attachment{
		Color:  color,
		Blocks: []slack.Block{slack.Section(status), slack.Fields(fields...)},
	}
}

func (b *Builder) fallbackText(push *models.PushNotification, run *runner.Result) string {
	text := slack.Escape(headline(push))
	switch {
	case run == nil:
	case run.Succeeded():
		text += ": automation run succeeded"
	default:
		text += ": automation run failed"
	}
	return text
}

func headline(push *models.PushNotification) string {
	name := push.Repository.DisplayName()
	if name == "" {
		name = "unknown repository"
	}
	text := "Push to " + name
	if push.Sender != nil && push.Sender.Login != "" {
		text += " by " + push.Sender.Login
	}
	if utf8.RuneCountInString(text) > maxHeaderText {
		text = string([]rune(text)[:maxHeaderText-3]) + "..."
	}
	return text
}

func commitLines(commits []models.Commit) []string {
	lines := make([]string, 0, len(commits))
	for _, c := range commits {
		title := slack.Escape(c.Title())
		if title == "" {
			title = "(no message)"
		}
		id := c.ShortID(ShortIDLength)
		if id == "" {
			lines = append(lines, title)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s (%s)", title, slack.Link(c.URL, id)))
	}
	return lines
}

// chunkLines joins lines with newlines into texts of at most max bytes.
// A single over-long line is truncated.
func chunkLines(lines []string, max int) []string {
	var chunks []string
	var cur strings.Builder
	for _, line := range lines {
		if len(line) > max {
			line = truncateBytes(line, max)
		}
		if cur.Len() > 0 && cur.Len()+1+len(line) > max {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

func truncateBytes(s string, max int) string {
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// Truncate limits s to MaxExcerpt characters and appends Elision when it
// cut anything. Truncating an already truncated excerpt returns it unchanged:
// only a body of exactly MaxExcerpt characters followed by Elision is taken
// as one, and cutting such a string would produce the same value anyway.
func Truncate(s string) string {
	if body, ok := strings.CutSuffix(s, Elision); ok && utf8.RuneCountInString(body) == MaxExcerpt {
		return s
	}
	if utf8.RuneCountInString(s) <= MaxExcerpt {
		return s
	}
	return string([]rune(s)[:MaxExcerpt]) + Elision
}

func codeBlock(s string) string {
	return "```\n" + s + "\n```"
}

func shorten(rev string) string {
	if len(rev) > ShortIDLength {
		return rev[:ShortIDLength]
	}
	return rev
}
