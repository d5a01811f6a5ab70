// Package summarizer turns the day's news items into a single backend request
// and returns the backend's raw JSON answer.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/deusflow/mnadigest/internal/clock"
	"github.com/deusflow/mnadigest/internal/digest"
	"github.com/deusflow/mnadigest/internal/llm"
	"github.com/deusflow/mnadigest/internal/logger"
	"github.com/deusflow/mnadigest/internal/news"
	"github.com/deusflow/mnadigest/internal/ratelimit"
	"github.com/deusflow/mnadigest/internal/retry"
)

const (
	MaxAttempts           = 2
	DefaultMaxPromptChars = 900000

	backoffBase = time.Second
)

// DefaultQuery asks the model for real-estate and mortgage M&A stories only,
// answered in the digest JSON shape.
const DefaultQuery = `Below is a list of news articles with their respective titles and URLs in the format:
"news title: news title. URL: URL.

Extract only news articles that are related to mergers and acquisitions in the real estate and mortgage industry.
Please do not repeat the same news, I don't want duplications, it should be strictly followed. Return the results in the following JSON format:

{
  "M&A_News": [
    {
      "title": "News Title",
      "url": "News URL"
    },
    {
      "title": "News Title",
      "url": "News URL"
    }
  ]
}

If there are no relevant news articles, return:

{
  "M&A_News": "No News"
}`

var errWaitAborted = errors.New("rate limit wait aborted")

// BuildPrompt renders the query followed by one line per item, cut to at most
// maxChars characters. A non-positive maxChars disables the cut.
func BuildPrompt(items []news.Item, query string, maxChars int) string {
	var b strings.Builder
	b.WriteString(query)
	b.WriteString("\n\n🔍 Recent News:\n\n")
	for _, it := range items {
		fmt.Fprintf(&b, "-> news title: %s. URL: %s\n", it.Title, it.URL)
	}
	return truncateRunes(b.String(), maxChars)
}

func truncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// Dispatcher sends prompts to the configured backends under their rate limits.
type Dispatcher struct {
	clients  map[string]llm.Client
	limiter  *ratelimit.Limiter
	backends []ratelimit.ModelBackend
	clock    clock.Clock

	query          string
	maxPromptChars int
	failover       bool
	requestTimeout time.Duration
	shuffle        func([]ratelimit.ModelBackend)
}

type Option func(*Dispatcher)

func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithFailover lets Summarize move on to the next backend when one yields nothing.
func WithFailover(on bool) Option {
	return func(d *Dispatcher) { d.failover = on }
}

// WithRequestTimeout bounds each backend call. Zero leaves calls unbounded.
func WithRequestTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.requestTimeout = t }
}

func WithQuery(q string) Option {
	return func(d *Dispatcher) { d.query = q }
}

func WithMaxPromptChars(n int) Option {
	return func(d *Dispatcher) { d.maxPromptChars = n }
}

// WithShuffle replaces the random ordering applied to backends at construction.
func WithShuffle(fn func([]ratelimit.ModelBackend)) Option {
	return func(d *Dispatcher) { d.shuffle = fn }
}

// New builds a dispatcher. clients is keyed by provider name. The backend order
// is shuffled once here and stays fixed for the dispatcher's lifetime.
func New(backends []ratelimit.ModelBackend, clients map[string]llm.Client, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		clients:        clients,
		clock:          clock.Real{},
		query:          DefaultQuery,
		maxPromptChars: DefaultMaxPromptChars,
		shuffle: func(b []ratelimit.ModelBackend) {
			rand.Shuffle(len(b), func(i, j int) { b[i], b[j] = b[j], b[i] })
		},
	}
	for _, o := range opts {
		o(d)
	}

	d.backends = make([]ratelimit.ModelBackend, len(backends))
	copy(d.backends, backends)
	d.shuffle(d.backends)
	d.limiter = ratelimit.New(backends, ratelimit.WithClock(d.clock))
	return d
}

// Backends returns the backends in the order Summarize will try them.
func (d *Dispatcher) Backends() []ratelimit.ModelBackend {
	out := make([]ratelimit.ModelBackend, len(d.backends))
	copy(out, d.backends)
	return out
}

func (d *Dispatcher) Limiter() *ratelimit.Limiter {
	return d.limiter
}

// Dispatch sends prompt to the named backend. Each attempt waits for the
// backend's rate limit first. Empty answers are retried, rate-limit errors are
// retried after an exponential backoff and any other error aborts. It reports
// false when no usable text came back.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt, backendName string) (string, bool) {
	backend, ok := d.limiter.Backend(backendName)
	if !ok {
		logger.Warn("backend not configured, skipping", "backend", backendName)
		return "", false
	}
	client, ok := d.clients[backend.Provider]
	if !ok {
		logger.Warn("no client for provider", "provider", backend.Provider, "backend", backend.Name)
		return "", false
	}

	var text string
	err := retry.WithRetry(ctx, retry.RetryConfig{
		MaxAttempts: MaxAttempts,
		Delay:       backoffBase,
		Classify:    classify,
		Clock:       d.clock,
	}, func(attempt int) error {
		if !d.limiter.Wait(ctx, backend.Name) {
			return errWaitAborted
		}

		logger.Info("sending summarization request", "backend", backend.Name, "attempt", attempt+1)
		reqCtx, cancel := ctx, context.CancelFunc(func() {})
		if d.requestTimeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, d.requestTimeout)
		}
		out, err := client.Generate(reqCtx, backend.Name, prompt)
		cancel()
		if err != nil {
			if llm.IsRateLimit(err) {
				logger.Warn("rate limit hit, backing off", "backend", backend.Name, "wait", backoffBase<<attempt)
			}
			return err
		}
		out = strings.TrimSpace(out)
		if out == "" {
			logger.Warn("backend returned empty response", "backend", backend.Name, "attempt", attempt+1)
			return llm.ErrEmptyResponse
		}
		text = out
		return nil
	})
	if err != nil {
		logger.Error("summarization request failed", "backend", backend.Name, "error", err)
		return "", false
	}
	return text, true
}

func classify(err error) retry.Action {
	switch {
	case errors.Is(err, errWaitAborted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return retry.Stop
	case errors.Is(err, llm.ErrEmptyResponse):
		return retry.Retry
	case llm.IsRateLimit(err):
		return retry.Backoff
	default:
		return retry.Stop
	}
}

// Summarize builds the prompt for items and sends it to the first backend in
// the shuffled order, or to each in turn when failover is on. With no items
// it returns the no-news payload without calling any backend.
func (d *Dispatcher) Summarize(ctx context.Context, items []news.Item) (string, bool) {
	if len(items) == 0 {
		logger.Info("no news for today, skipping summarization")
		return digest.NoNewsPayload(), true
	}
	if len(d.backends) == 0 {
		logger.Warn("no summarization backends configured")
		return "", false
	}

	prompt := BuildPrompt(items, d.query, d.maxPromptChars)

	candidates := d.backends[:1]
	if d.failover {
		candidates = d.backends
	}
	for _, b := range candidates {
		logger.Info("processing with backend", "backend", b.Name, "provider", b.Provider, "items", len(items))
		if text, ok := d.Dispatch(ctx, prompt, b.Name); ok {
			logger.Info("summary generated", "backend", b.Name)
			return text, true
		}
		if ctx.Err() != nil {
			break
		}
	}

	logger.Warn("failed to generate summary")
	return "", false
}
