package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/sashabaranov/go-openai"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"api 429", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, KindQuota},
		{"api 403", &openai.APIError{HTTPStatusCode: 403, Message: "forbidden"}, KindQuota},
		{"api 401", &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}, KindNoCredentials},
		{"api quota message", &openai.APIError{HTTPStatusCode: 400, Message: "Quota exceeded for project"}, KindQuota},
		{"api 500", &openai.APIError{HTTPStatusCode: 500, Message: "internal"}, KindTransient},
		{"request 429", &openai.RequestError{HTTPStatusCode: 429, Err: errors.New("x")}, KindQuota},
		{"request 502", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, KindTransient},
		{"wrapped api error", fmt.Errorf("chat completion: %w", &openai.APIError{HTTPStatusCode: 429}), KindQuota},
		{"url error", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}, KindNetwork},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("no route")}, KindNetwork},
		{"context canceled", fmt.Errorf("call: %w", context.Canceled), KindNetwork},
		{"no credentials", ErrNoCredentials, KindNoCredentials},
		{"empty response", fmt.Errorf("%w: no choices", ErrEmptyResponse), KindTransient},
		{"malformed", ErrMalformedResponse, KindTransient},
		{"resource exhausted text", errors.New("RESOURCE_EXHAUSTED: try later"), KindQuota},
		{"generic", errors.New("boom"), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestKindTerminal(t *testing.T) {
	if KindTransient.Terminal() {
		t.Error("transient must not be terminal")
	}
	for _, k := range []Kind{KindQuota, KindNoCredentials, KindNetwork} {
		if !k.Terminal() {
			t.Errorf("%s must be terminal", k)
		}
	}
}
