package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deusflow/mnadigest/internal/config"
	"github.com/deusflow/mnadigest/internal/digest"
	"github.com/deusflow/mnadigest/internal/llm"
	"github.com/deusflow/mnadigest/internal/logger"
	"github.com/deusflow/mnadigest/internal/metrics"
	"github.com/deusflow/mnadigest/internal/news"
	"github.com/deusflow/mnadigest/internal/publish"
	"github.com/deusflow/mnadigest/internal/ratelimit"
	"github.com/deusflow/mnadigest/internal/rss"
	"github.com/deusflow/mnadigest/internal/summarizer"
)

type FeedFetcher interface {
	Fetch(ctx context.Context, urls []string) []rss.Entry
}

type Summarizer interface {
	Summarize(ctx context.Context, items []news.Item) (string, bool)
}

// Pipeline is one digest run: fetch, keep today's items, summarize, format, post.
type Pipeline struct {
	Feeds      []string
	Fetcher    FeedFetcher
	Summarizer Summarizer
	// Publisher may be nil when DryRun is set.
	Publisher  publish.Publisher
	Channel    string
	LocalDedup bool
	DryRun     bool
	Now        func() time.Time
	Metrics    *metrics.Run
}

// Report describes what a run produced.
type Report struct {
	Result  digest.Result
	Message string
	Posted  bool
}

// Execute runs the pipeline. Nothing in it is fatal: a missing summary or a
// failed post still ends with a report, and errors are only logged.
func (p *Pipeline) Execute(ctx context.Context) Report {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	m := p.Metrics
	if m == nil {
		m = metrics.NewRun(now())
	}

	entries := p.Fetcher.Fetch(ctx, p.Feeds)
	m.AddEntriesFetched(len(entries))
	logger.Info("collected feed entries", "feeds", len(p.Feeds), "entries", len(entries))

	items := news.Normalize(entries, now())
	m.AddItemsToday(len(items))
	logger.Info("news published today", "items", len(items))

	raw, ok := p.Summarizer.Summarize(ctx, items)
	if !ok {
		m.SetSummaryUnavailable()
		raw = ""
	}

	result := digest.Parse(raw)
	if p.LocalDedup && result.Kind == digest.Items {
		kept, dropped := digest.Dedupe(result.Entries)
		if dropped > 0 {
			logger.Info("dropped duplicate digest entries", "dropped", dropped)
		}
		result.Entries = kept
		m.AddDuplicatesDropped(dropped)
	}
	m.AddDigestEntries(len(result.Entries))
	logger.Info("summary parsed", "kind", result.Kind.String(), "entries", len(result.Entries))

	style := digest.Slack
	if p.Publisher != nil {
		style = p.Publisher.Style()
	}
	msg := digest.Format(result, style)
	report := Report{Result: result, Message: msg}
	logger.Debug("formatted digest", "message", msg)

	if p.DryRun || p.Publisher == nil {
		logger.Info("dry run, message not sent", "message", msg)
		return report
	}

	channelID, err := p.Publisher.ResolveChannel(ctx, p.Channel)
	if err != nil {
		m.SetError(err)
		logger.Error("cannot send message: channel not resolved", "channel", p.Channel, "error", err)
		return report
	}
	if err := p.Publisher.PostMessage(ctx, channelID, msg); err != nil {
		m.SetError(err)
		logger.Error("error sending message", "channel", p.Channel, "error", err)
		return report
	}
	m.IncrementMessagesSent()
	report.Posted = true
	logger.Info("message generated and sent", "channel", p.Channel)
	return report
}

// Run wires the production collaborators from cfg and executes one digest run.
// Only startup problems are returned.
func Run(ctx context.Context, cfg *config.Config) error {
	start := time.Now()
	m := metrics.NewRun(start)

	feeds, err := rss.LoadFeeds(cfg.FeedsConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load feed list: %w", err)
	}

	clients, closeClients, err := newClients(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeClients()

	disp := summarizer.New(cfg.Backends, clients,
		summarizer.WithFailover(cfg.Failover),
		summarizer.WithMaxPromptChars(cfg.MaxPromptChars),
		summarizer.WithRequestTimeout(cfg.RequestTimeout),
	)
	logger.Info("summarization backends", "order", backendNames(disp.Backends()), "failover", cfg.Failover)

	var pub publish.Publisher
	if !cfg.DryRun {
		pub, err = newPublisher(cfg)
		if err != nil {
			return err
		}
	}

	p := &Pipeline{
		Feeds:      feeds,
		Fetcher:    rss.NewFetcher(cfg.RequestTimeout),
		Summarizer: disp,
		Publisher:  pub,
		Channel:    cfg.ChannelName,
		LocalDedup: cfg.LocalDedup,
		DryRun:     cfg.DryRun,
		Metrics:    m,
	}
	p.Execute(ctx)

	m.SetBackendRequests(disp.Limiter().TotalRequests())
	for _, s := range disp.Limiter().Stats() {
		logger.Debug("backend usage", "backend", s.Name, "rpm", s.RequestsPerMinute, "requests", s.Requests)
	}
	m.Finish(time.Now())
	logger.Info("run finished", m.LogArgs()...)
	return nil
}

func newClients(ctx context.Context, cfg *config.Config) (map[string]llm.Client, func(), error) {
	clients := make(map[string]llm.Client)
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, provider := range cfg.Providers() {
		switch provider {
		case llm.ProviderGemini:
			g, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, g.Close)
			clients[provider] = g
		case llm.ProviderOpenAI:
			clients[provider] = llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		case llm.ProviderAnthropic:
			clients[provider] = llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown provider %q", provider)
		}
	}
	return clients, closeAll, nil
}

func newPublisher(cfg *config.Config) (publish.Publisher, error) {
	switch cfg.Publisher {
	case publish.KindSlack:
		return publish.NewSlack(cfg.SlackBotToken), nil
	case publish.KindTelegram:
		return publish.NewTelegram(cfg.TelegramToken, cfg.RequestTimeout), nil
	}
	return nil, errors.New("unknown publisher " + cfg.Publisher)
}

func backendNames(bs []ratelimit.ModelBackend) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Name
	}
	return out
}
