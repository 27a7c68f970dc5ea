package models

import (
	"fmt"
	"strings"

	"github.com/google/go-github/v70/github"
)

// GitHub event types the relay understands
const (
	EventPing = "ping"
	EventPush = "push"
)

// PushNotification is the parsed form of a push delivery.
// Absent optional values are empty strings; Sender is nil when the payload
// carries no sender.
type PushNotification struct {
	Ref          string
	Repository   Repository
	Sender       *User
	Commits      []Commit
	HeadCommitID string
	After        string
	CompareURL   string
}

// Repository identifies the repository that received the push
type Repository struct {
	Name     string
	FullName string
	HTMLURL  string
}

// User identifies the actor who pushed
type User struct {
	Login      string
	ProfileURL string
}

// Commit holds the commit fields the relay uses
type Commit struct {
	ID       string
	Message  string
	URL      string
	Added    []string
	Modified []string
	Removed  []string
}

// ParsePush decodes a push payload.
// The body must already have been authenticated.
func ParsePush(body []byte) (*PushNotification, error) {
	event, err := github.ParseWebHook(EventPush, body)
	if err != nil {
		return nil, fmt.Errorf("parse push payload: %w", err)
	}

	push, ok := event.(*github.PushEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected payload type %T", event)
	}

	return FromPushEvent(push), nil
}

// FromPushEvent converts a go-github push event
func FromPushEvent(e *github.PushEvent) *PushNotification {
	repo := e.GetRepo()

	p := &PushNotification{
		Ref: e.GetRef(),
		Repository: Repository{
			Name:     repo.GetName(),
			FullName: repo.GetFullName(),
			HTMLURL:  repo.GetHTMLURL(),
		},
		HeadCommitID: e.GetHeadCommit().GetID(),
		After:        e.GetAfter(),
		CompareURL:   e.GetCompare(),
	}

	if sender := e.GetSender(); sender != nil && sender.GetLogin() != "" {
		profile := sender.GetHTMLURL()
		if profile == "" {
			profile = sender.GetURL()
		}
		p.Sender = &User{Login: sender.GetLogin(), ProfileURL: profile}
	}

	p.Commits = make([]Commit, 0, len(e.Commits))
	for _, c := range e.Commits {
		if c == nil {
			continue
		}
		p.Commits = append(p.Commits, Commit{
			ID:       c.GetID(),
			Message:  c.GetMessage(),
			URL:      c.GetURL(),
			Added:    c.Added,
			Modified: c.Modified,
			Removed:  c.Removed,
		})
	}

	return p
}

// Revision returns the commit the automation run must apply: the head
// commit, falling back to the last listed commit and then to "after".
func (p *PushNotification) Revision() string {
	if p.HeadCommitID != "" {
		return p.HeadCommitID
	}
	if n := len(p.Commits); n > 0 && p.Commits[n-1].ID != "" {
		return p.Commits[n-1].ID
	}
	return p.After
}

// Branch returns the pushed branch without refs/heads/ prefix
func (p *PushNotification) Branch() string {
	return strings.TrimPrefix(p.Ref, "refs/heads/")
}

// DisplayName returns the repository name used in reports
func (r Repository) DisplayName() string {
	if r.FullName != "" {
		return r.FullName
	}
	return r.Name
}

// Title returns the first line of the commit message
func (c Commit) Title() string {
	if idx := strings.IndexAny(c.Message, "\r\n"); idx != -1 {
		return c.Message[:idx]
	}
	return c.Message
}

// ShortID returns the first n characters of the commit id
func (c Commit) ShortID(n int) string {
	if len(c.ID) > n {
		return c.ID[:n]
	}
	return c.ID
}
