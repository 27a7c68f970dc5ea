package slack

import (
	"regexp"
	"strings"
)

var linkPattern = regexp.MustCompile(`<([^|<>]+)\|([^<>]+)>`)

var unescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")

// PlainText renders the message for channels without Block Kit support.
// Links become "label (url)", escaped characters are restored and headers
// are wrapped in asterisks.
func (m *Message) PlainText() string {
	var parts []string

	for _, b := range m.Blocks {
		if s := renderBlock(b); s != "" {
			parts = append(parts, s)
		}
	}

	for _, a := range m.Attachments {
		if len(a.Blocks) == 0 {
			if a.Text != "" {
				parts = append(parts, unlink(a.Text))
			}
			continue
		}
		for _, b := range a.Blocks {
			if s := renderBlock(b); s != "" {
				parts = append(parts, s)
			}
		}
	}

	if len(parts) == 0 {
		return unlink(m.Text)
	}
	return strings.Join(parts, "\n\n")
}

func renderBlock(b Block) string {
	switch b.Type {
	case BlockHeader:
		if b.Text == nil || b.Text.Text == "" {
			return ""
		}
		return "*" + b.Text.Text + "*"
	case BlockDivider:
		return "----"
	default:
		var lines []string
		if b.Text != nil && b.Text.Text != "" {
			lines = append(lines, unlink(b.Text.Text))
		}
		for _, f := range b.Fields {
			if f.Text != "" {
				lines = append(lines, unlink(f.Text))
			}
		}
		return strings.Join(lines, "\n")
	}
}

func unlink(s string) string {
	return unescaper.Replace(linkPattern.ReplaceAllString(s, "$2 ($1)"))
}
