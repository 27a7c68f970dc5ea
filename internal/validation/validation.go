package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nahidhasan98/netconf-relay/internal/errors"
)

var (
	// Full or abbreviated hex object name (SHA-1 or SHA-256 repositories)
	revisionPattern = regexp.MustCompile(`^[0-9a-fA-F]{7,64}$`)

	// Individual JID pattern: number@s.whatsapp.net
	individualJIDPattern = regexp.MustCompile(`^\d{10,15}@s\.whatsapp\.net$`)

	// Group JID pattern: groupid@g.us (groups created after 2021 use digits-only ids)
	groupJIDPattern = regexp.MustCompile(`^\d+(-\d+)?@g\.us$`)

	newlineRun = regexp.MustCompile(`\n{3,}`)
)

// MaxMessageLength is the longest text the WhatsApp notifier sends
const MaxMessageLength = 4096

// Validator provides validation methods
type Validator struct{}

// New creates a new validator instance
func New() *Validator {
	return &Validator{}
}

// ValidateRevision checks that a revision taken from a payload is a plain
// commit id before it is handed to git.
func (v *Validator) ValidateRevision(rev string) *errors.AppError {
	if rev == "" {
		return errors.ValidationError("revision is required")
	}
	if !revisionPattern.MatchString(rev) {
		return errors.ValidationError(fmt.Sprintf("invalid revision %q: expected a hex commit id", rev))
	}
	return nil
}

// ValidateRecipient checks a WhatsApp recipient JID
func (v *Validator) ValidateRecipient(jid string) *errors.AppError {
	if strings.TrimSpace(jid) == "" {
		return errors.ValidationError("recipient is required")
	}
	if !v.IsValidJID(jid) {
		return errors.ValidationError(fmt.Sprintf("invalid WhatsApp JID: %s", jid))
	}
	return nil
}

// IsValidJID checks if a JID is valid WhatsApp format
func (v *Validator) IsValidJID(jid string) bool {
	jid = strings.TrimSpace(jid)
	return individualJIDPattern.MatchString(jid) || groupJIDPattern.MatchString(jid)
}

// SanitizeMessage trims, strips null bytes, collapses long newline runs and
// caps the length at MaxMessageLength.
func (v *Validator) SanitizeMessage(message string) string {
	message = strings.TrimSpace(message)
	message = strings.ReplaceAll(message, "\x00", "")
	message = newlineRun.ReplaceAllString(message, "\n\n")

	if len(message) > MaxMessageLength {
		cut := MaxMessageLength - len("...")
		// back off to a rune boundary
		for cut > 0 && !isRuneStart(message[cut]) {
			cut--
		}
		message = message[:cut] + "..."
	}

	return message
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
