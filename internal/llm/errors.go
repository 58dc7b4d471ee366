package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Sentinel errors produced by this package.
var (
	ErrQuotaExceeded     = errors.New("llm: quota exceeded")
	ErrNoCredentials     = errors.New("llm: no usable credentials")
	ErrNetwork           = errors.New("llm: network failure")
	ErrEmptyResponse     = errors.New("llm: empty response")
	ErrMalformedResponse = errors.New("llm: malformed response")
)

// Kind classifies a generation failure.
type Kind int

const (
	// KindTransient failures are retried with backoff.
	KindTransient Kind = iota
	// KindQuota means the upstream rejected the request for rate or usage limits.
	KindQuota
	// KindNoCredentials means no usable API key is configured.
	KindNoCredentials
	// KindNetwork is a transport-level failure.
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindQuota:
		return "quota"
	case KindNoCredentials:
		return "no_credentials"
	case KindNetwork:
		return "network"
	default:
		return "transient"
	}
}

// Terminal reports whether remote generation should stop and fall back.
func (k Kind) Terminal() bool {
	return k != KindTransient
}

// Classify maps an error returned by a generation call to a Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindTransient
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuota
	case errors.Is(err, ErrNoCredentials):
		return KindNoCredentials
	case errors.Is(err, ErrNetwork),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if k, ok := classifyStatus(apiErr.HTTPStatusCode); ok {
			return k
		}
		if isQuotaMessage(apiErr.Message) {
			return KindQuota
		}
		return KindTransient
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if k, ok := classifyStatus(reqErr.HTTPStatusCode); ok {
			return k
		}
		if reqErr.HTTPStatusCode == 0 {
			return KindNetwork
		}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return KindNetwork
	}

	if isQuotaMessage(err.Error()) {
		return KindQuota
	}
	return KindTransient
}

func classifyStatus(code int) (Kind, bool) {
	switch code {
	case http.StatusTooManyRequests, http.StatusForbidden:
		return KindQuota, true
	case http.StatusUnauthorized:
		return KindNoCredentials, true
	}
	return KindTransient, false
}

func isQuotaMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, needle := range []string{"429", "quota", "rate limit", "rate_limit", "resource_exhausted", "resource exhausted", "too many requests"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
