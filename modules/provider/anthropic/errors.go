package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/flemzord/trekassist/internal/provider"
)

var errAuth = errors.New("anthropic: authentication failed")

// errorBody is the error envelope of the Messages API.
type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// mapError turns SDK errors into provider sentinels so the chain can
// decide between failover and giving up. The error type in the body wins
// over the status code; 529 carries overloaded_error.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *sdkanthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	var body errorBody
	_ = json.Unmarshal([]byte(apiErr.RawJSON()), &body)
	msg := body.Error.Message
	if msg == "" {
		msg = apiErr.Error()
	}

	switch {
	case body.Error.Type == "rate_limit_error" || apiErr.StatusCode == http.StatusTooManyRequests:
		return &provider.RateLimited{After: retryAfter(apiErr), Detail: msg}
	case body.Error.Type == "overloaded_error" || body.Error.Type == "api_error" || apiErr.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", provider.ErrProviderDown, msg)
	case body.Error.Type == "authentication_error" || body.Error.Type == "permission_error" ||
		apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", errAuth, msg)
	case apiErr.StatusCode == http.StatusBadRequest && exceedsContext(msg):
		return fmt.Errorf("%w: %s", provider.ErrContextLength, msg)
	default:
		return fmt.Errorf("anthropic: HTTP %d: %w", apiErr.StatusCode, err)
	}
}

func retryAfter(apiErr *sdkanthropic.Error) time.Duration {
	if apiErr.Response == nil {
		return 0
	}
	return provider.ParseRetryAfter(apiErr.Response.Header, time.Now())
}

func exceedsContext(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range []string{"context length", "context window", "too many tokens", "token limit", "prompt is too long"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
