// Package llm holds the summarization backend clients. Each one turns a prompt
// into raw response text; interpreting that text is the caller's job.
package llm

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
)

const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var ErrEmptyResponse = errors.New("empty response from model")

type Client interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// rateLimitPattern matches throttling messages from providers that do not
// surface a status code. "rate" must be a whole word so "generate" never matches.
var rateLimitPattern = regexp.MustCompile(`(?i)\brate([ _-]?limit(ed)?)?\b|quota|resource has been exhausted|resource_exhausted|too many requests|\b429\b`)

// IsRateLimit reports whether err means the backend is throttling us.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusTooManyRequests {
		return true
	}
	var oErr *openai.APIError
	if errors.As(err, &oErr) && oErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var oReqErr *openai.RequestError
	if errors.As(err, &oReqErr) && oReqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var aErr *anthropic.Error
	if errors.As(err, &aErr) && aErr.StatusCode == http.StatusTooManyRequests {
		return true
	}

	return rateLimitPattern.MatchString(err.Error())
}
