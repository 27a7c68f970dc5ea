// Package slack models Slack incoming-webhook messages and delivers them.
package slack

import "strings"

// Block types
const (
	BlockHeader  = "header"
	BlockSection = "section"
	BlockDivider = "divider"
)

// Text object types
const (
	TextPlain    = "plain_text"
	TextMarkdown = "mrkdwn"
)

// Message is the incoming-webhook payload. Every optional field is omitted
// from the JSON when unset.
type Message struct {
	Text        string       `json:"text,omitempty"`
	Blocks      []Block      `json:"blocks,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Block is a Block Kit layout block
type Block struct {
	Type   string `json:"type"`
	Text   *Text  `json:"text,omitempty"`
	Fields []Text `json:"fields,omitempty"`
}

// Text is a Block Kit text object
type Text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji *bool  `json:"emoji,omitempty"`
}

// Attachment groups blocks under a coloured bar
type Attachment struct {
	Color  string  `json:"color,omitempty"`
	Text   string  `json:"text,omitempty"`
	Blocks []Block `json:"blocks,omitempty"`
}

// Header creates a header block
func Header(text string) Block {
	return Block{Type: BlockHeader, Text: &Text{Type: TextPlain, Text: text}}
}

// Section creates a section block with markdown text
func Section(markdown string) Block {
	return Block{Type: BlockSection, Text: &Text{Type: TextMarkdown, Text: markdown}}
}

// Fields creates a section block laid out as markdown fields
func Fields(markdown ...string) Block {
	b := Block{Type: BlockSection}
	for _, f := range markdown {
		b.Fields = append(b.Fields, Text{Type: TextMarkdown, Text: f})
	}
	return b
}

// Divider creates a divider block
func Divider() Block {
	return Block{Type: BlockDivider}
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape escapes the characters mrkdwn treats as control sequences.
// User supplied text must pass through it before it is placed in a section.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Link formats a markdown link. The label is escaped.
func Link(url, label string) string {
	if url == "" {
		return Escape(label)
	}
	return "<" + url + "|" + Escape(label) + ">"
}
