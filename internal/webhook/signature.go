// Package webhook authenticates inbound GitHub webhook deliveries.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// SignatureHeader carries the "<algorithm>=<hex digest>" descriptor
const SignatureHeader = "X-Hub-Signature-256"

// SignatureAlgorithm is the only accepted algorithm token
const SignatureAlgorithm = "sha256"

// Failure kinds returned (wrapped in *SignatureError) by Verify.
var (
	ErrNotConfigured        = errors.New("webhook secret not configured")
	ErrMissingHeader        = errors.New("missing signature header")
	ErrMalformedHeader      = errors.New("malformed signature header")
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	ErrSignatureMismatch    = errors.New("signature mismatch")
)

// compareDigests must stay constant-time.
var compareDigests = hmac.Equal

// SignatureError describes a failed verification. Supplied and Computed are
// hex digests kept for audit logs; neither reveals the secret.
type SignatureError struct {
	Kind      error
	Header    string
	Algorithm string
	Supplied  string
	Computed  string
}

func (e *SignatureError) Error() string {
	switch e.Kind {
	case ErrUnsupportedAlgorithm:
		return fmt.Sprintf("%v (%s)", e.Kind, e.Algorithm)
	case ErrMalformedHeader:
		return fmt.Sprintf("%v (%s)", e.Kind, e.Header)
	case ErrSignatureMismatch:
		return fmt.Sprintf("%v: request %s, computed %s", e.Kind, e.Supplied, e.Computed)
	default:
		return e.Kind.Error()
	}
}

// Unwrap lets errors.Is match the failure kind
func (e *SignatureError) Unwrap() error {
	return e.Kind
}

// IsConfigurationError reports whether err is a server-side problem rather
// than a bad request.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// Verify checks the request signature against the raw body bytes.
// body must be exactly what was received; re-encoded JSON will not match.
func Verify(header http.Header, body []byte, secret string) error {
	if secret == "" {
		return &SignatureError{Kind: ErrNotConfigured}
	}

	value := header.Get(SignatureHeader)
	if value == "" {
		return &SignatureError{Kind: ErrMissingHeader}
	}

	algorithm, supplied, ok := strings.Cut(value, "=")
	if !ok {
		return &SignatureError{Kind: ErrMalformedHeader, Header: value}
	}

	if algorithm != SignatureAlgorithm {
		return &SignatureError{Kind: ErrUnsupportedAlgorithm, Header: value, Algorithm: algorithm}
	}

	computed := Sign(body, secret)
	if !compareDigests([]byte(supplied), []byte(computed)) {
		return &SignatureError{
			Kind:      ErrSignatureMismatch,
			Header:    value,
			Algorithm: algorithm,
			Supplied:  supplied,
			Computed:  computed,
		}
	}

	return nil
}

// Sign returns the hex HMAC-SHA256 of body keyed with secret
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureValue returns the header value a sender would attach to body
func SignatureValue(body []byte, secret string) string {
	return SignatureAlgorithm + "=" + Sign(body, secret)
}
