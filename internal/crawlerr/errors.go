// Package crawlerr defines the typed error taxonomy shared by the URL
// guard, the bounded fetcher, and the analysis orchestrator.
package crawlerr

import (
	"errors"
	"fmt"
)

// Kind classifies a crawl failure.
type Kind string

const (
	// Pre-flight failures: the URL never reached the network.
	KindInvalidURL          Kind = "invalid_url"
	KindDisallowedProtocol  Kind = "disallowed_protocol"
	KindBlockedHost         Kind = "blocked_host"
	KindUnresolvableHost    Kind = "unresolvable_host"
	KindDNSRebindingBlocked Kind = "dns_rebinding_blocked"

	// Per-page failures: fatal for that page, tolerated in multi-page runs.
	KindRedirectRejected      Kind = "redirect_rejected"
	KindHTTPError             Kind = "http_error"
	KindUnexpectedContentType Kind = "unexpected_content_type"
	KindTimeout               Kind = "timeout"
	KindSizeLimitExceeded     Kind = "size_limit_exceeded"
	KindSSLCertificate        Kind = "ssl_certificate_error"

	// Run-level failures: recorded on the analysis record.
	KindScrapeFailed    Kind = "scrape_failed"
	KindSynthesisFailed Kind = "synthesis_failed"
)

// Error is a crawl failure with a machine-readable kind and an optional
// underlying cause. Status carries the HTTP status for KindHTTPError.
type Error struct {
	Kind   Kind
	Msg    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// HTTPStatus creates a KindHTTPError for a non-2xx response.
func HTTPStatus(status int) *Error {
	return &Error{Kind: KindHTTPError, Msg: fmt.Sprintf("status %d", status), Status: status}
}

// KindOf extracts the Kind from an error chain, or "" if none is present.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsPreflight reports whether a kind belongs to the pre-flight class that
// surfaces as a 400 to callers and is never retried.
func IsPreflight(kind Kind) bool {
	switch kind {
	case KindInvalidURL, KindDisallowedProtocol, KindBlockedHost,
		KindUnresolvableHost, KindDNSRebindingBlocked:
		return true
	}
	return false
}

// Sanitized renders a human-readable failure description safe to persist
// on an analysis record: the kind plus a generic description, never the
// wrapped internal error text.
func Sanitized(err error) string {
	kind := KindOf(err)
	if kind == "" {
		return "analysis failed: internal error"
	}
	desc, ok := kindDescriptions[kind]
	if !ok {
		desc = "analysis failed"
	}
	return fmt.Sprintf("%s (%s)", desc, kind)
}

var kindDescriptions = map[Kind]string{
	KindInvalidURL:            "the website URL could not be parsed",
	KindDisallowedProtocol:    "only http and https URLs are supported",
	KindBlockedHost:           "the website host is not allowed",
	KindUnresolvableHost:      "the website host could not be resolved",
	KindDNSRebindingBlocked:   "the website host resolved to a disallowed address",
	KindRedirectRejected:      "the website redirected to a disallowed location",
	KindHTTPError:             "the website returned an error response",
	KindUnexpectedContentType: "the website did not return an HTML page",
	KindTimeout:               "the website took too long to respond",
	KindSizeLimitExceeded:     "the website page was too large to analyze",
	KindSSLCertificate:        "the website has an invalid SSL certificate",
	KindScrapeFailed:          "no pages could be fetched from the website",
	KindSynthesisFailed:       "the analysis service could not process the website content",
}
