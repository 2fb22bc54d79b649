package ai

import (
	"errors"
	"net/http"
	"regexp"

	"google.golang.org/api/googleapi"
)

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrUnknownProvider is returned for provider names outside the closed set.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrMissingCredentials is returned when a provider needs an API key that was not configured.
	ErrMissingCredentials = errors.New("missing provider credentials")

	// ErrEmptyResponse is returned when a model answers with no content.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrRateLimited is returned when a provider reports it is throttling us.
	ErrRateLimited = errors.New("provider rate limit exceeded")
)

var throttleStatus = regexp.MustCompile(`\b429\b|RESOURCE_EXHAUSTED|ResourceExhausted|(?i:rate limit)`)

// IsRateLimited reports whether err is a provider throttling response.
// SDKs that only surface the status in the message are matched on its text.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}
	return throttleStatus.MatchString(err.Error())
}
