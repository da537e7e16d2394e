package crawlerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := New(KindBlockedHost, "host %q", "localhost")
	assert.Equal(t, KindBlockedHost, KindOf(err))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, KindBlockedHost, KindOf(wrapped))

	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindHTTPError, cause, "fetch homepage")

	require.ErrorIs(t, err, cause)
	assert.True(t, IsKind(err, KindHTTPError))
	assert.Contains(t, err.Error(), "fetch homepage")
}

func TestHTTPStatus(t *testing.T) {
	err := HTTPStatus(503)
	assert.Equal(t, KindHTTPError, err.Kind)
	assert.Equal(t, 503, err.Status)
	assert.Contains(t, err.Error(), "503")
}

func TestIsPreflight(t *testing.T) {
	preflight := []Kind{
		KindInvalidURL, KindDisallowedProtocol, KindBlockedHost,
		KindUnresolvableHost, KindDNSRebindingBlocked,
	}
	for _, k := range preflight {
		assert.True(t, IsPreflight(k), string(k))
	}

	notPreflight := []Kind{
		KindRedirectRejected, KindHTTPError, KindTimeout,
		KindSizeLimitExceeded, KindSSLCertificate,
		KindScrapeFailed, KindSynthesisFailed, Kind(""),
	}
	for _, k := range notPreflight {
		assert.False(t, IsPreflight(k), string(k))
	}
}

func TestSanitized_NeverLeaksCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:443: connect: connection refused")
	err := Wrap(KindHTTPError, cause, "internal detail")

	msg := Sanitized(err)
	assert.NotContains(t, msg, "10.0.0.5")
	assert.NotContains(t, msg, "internal detail")
	assert.Contains(t, msg, string(KindHTTPError))
}

func TestSanitized_UnknownError(t *testing.T) {
	assert.Equal(t, "analysis failed: internal error", Sanitized(errors.New("boom")))
}

func TestSanitized_EveryKindHasDescription(t *testing.T) {
	kinds := []Kind{
		KindInvalidURL, KindDisallowedProtocol, KindBlockedHost,
		KindUnresolvableHost, KindDNSRebindingBlocked,
		KindRedirectRejected, KindHTTPError, KindUnexpectedContentType,
		KindTimeout, KindSizeLimitExceeded, KindSSLCertificate,
		KindScrapeFailed, KindSynthesisFailed,
	}
	for _, k := range kinds {
		desc, ok := kindDescriptions[k]
		require.True(t, ok, string(k))
		assert.NotEmpty(t, desc)
	}
}
