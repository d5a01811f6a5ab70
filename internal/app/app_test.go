package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/mnadigest/internal/clock"
	"github.com/deusflow/mnadigest/internal/config"
	"github.com/deusflow/mnadigest/internal/digest"
	"github.com/deusflow/mnadigest/internal/llm"
	"github.com/deusflow/mnadigest/internal/metrics"
	"github.com/deusflow/mnadigest/internal/news"
	"github.com/deusflow/mnadigest/internal/publish"
	"github.com/deusflow/mnadigest/internal/ratelimit"
	"github.com/deusflow/mnadigest/internal/rss"
	"github.com/deusflow/mnadigest/internal/summarizer"
)

var runDate = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const alertsFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Alerts</title>
  <entry>
    <title>ABC Corp &lt;i&gt;acquires&lt;/i&gt; XYZ Realty</title>
    <link href="https://www.google.com/url?rct=j&amp;url=http://x&amp;ct=ga"/>
    <published>2024-05-01T09:00:00Z</published>
  </entry>
  <entry>
    <title>Old deal</title>
    <link href="http://old"/>
    <published>2024-04-30T09:00:00Z</published>
  </entry>
  <entry>
    <title>Undated deal</title>
    <link href="http://undated"/>
    <published>not-a-date</published>
  </entry>
</feed>`

type scriptedClient struct {
	reply   string
	err     error
	prompts []string
}

func (c *scriptedClient) Generate(_ context.Context, _, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	return c.reply, c.err
}

type recordingPublisher struct {
	style      digest.Style
	channels   map[string]string
	resolveErr error
	postErr    error
	posted     []string
	postedTo   []string
}

func (p *recordingPublisher) Style() digest.Style { return p.style }

func (p *recordingPublisher) ResolveChannel(_ context.Context, name string) (string, error) {
	if p.resolveErr != nil {
		return "", p.resolveErr
	}
	id, ok := p.channels[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", publish.ErrChannelNotFound, name)
	}
	return id, nil
}

func (p *recordingPublisher) PostMessage(_ context.Context, channelID, text string) error {
	if p.postErr != nil {
		return p.postErr
	}
	p.postedTo = append(p.postedTo, channelID)
	p.posted = append(p.posted, text)
	return nil
}

type stubFetcher struct{ entries []rss.Entry }

func (f stubFetcher) Fetch(context.Context, []string) []rss.Entry { return f.entries }

type stubSummarizer struct {
	raw string
	ok  bool
}

func (s stubSummarizer) Summarize(context.Context, []news.Item) (string, bool) { return s.raw, s.ok }

func feedServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, alertsFeed)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func newDispatcher(client llm.Client) *summarizer.Dispatcher {
	backend := ratelimit.ModelBackend{Provider: llm.ProviderGemini, Name: "gemini-2.0-flash", RequestsPerMinute: 15}
	return summarizer.New([]ratelimit.ModelBackend{backend}, map[string]llm.Client{llm.ProviderGemini: client},
		summarizer.WithClock(clock.NewFake(runDate)))
}

func TestPipelineEndToEnd(t *testing.T) {
	client := &scriptedClient{reply: `{"M&A_News":[{"title":"ABC Corp acquires XYZ Realty","url":"http://x"}]}`}
	pub := &recordingPublisher{style: digest.Slack, channels: map[string]string{"mna-news-channel": "C42"}}
	m := metrics.NewRun(runDate)

	p := &Pipeline{
		Feeds:      []string{feedServer(t)},
		Fetcher:    rss.NewFetcher(5 * time.Second),
		Summarizer: newDispatcher(client),
		Publisher:  pub,
		Channel:    "mna-news-channel",
		LocalDedup: true,
		Now:        func() time.Time { return runDate },
		Metrics:    m,
	}

	report := p.Execute(context.Background())

	require.True(t, report.Posted)
	require.Len(t, pub.posted, 1)
	assert.Equal(t, []string{"C42"}, pub.postedTo)
	assert.Contains(t, pub.posted[0], "<http://x|ABC Corp acquires XYZ Realty>")
	assert.Equal(t, digest.Items, report.Result.Kind)

	// Only today's entry reaches the backend, cleaned and unwrapped.
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "-> news title: ABC Corp acquires XYZ Realty. URL: http://x\n")
	assert.NotContains(t, client.prompts[0], "Old deal")
	assert.NotContains(t, client.prompts[0], "Undated deal")

	stats := m.Stats()
	assert.Equal(t, int64(3), stats["entries_fetched"])
	assert.Equal(t, int64(1), stats["items_today"])
	assert.Equal(t, int64(1), stats["digest_entries"])
	assert.Equal(t, int64(1), stats["messages_sent"])
}

func TestPipelineTelegramStyle(t *testing.T) {
	pub := &recordingPublisher{style: digest.HTML, channels: map[string]string{"@mna": "-100"}}
	p := &Pipeline{
		Fetcher:    stubFetcher{},
		Summarizer: stubSummarizer{raw: `{"M&A_News":[{"title":"A & B merge","url":"http://ab"}]}`, ok: true},
		Publisher:  pub,
		Channel:    "@mna",
		Now:        func() time.Time { return runDate },
	}

	p.Execute(context.Background())

	require.Len(t, pub.posted, 1)
	assert.Contains(t, pub.posted[0], `<a href="http://ab">A &amp; B merge</a>`)
}

func TestPipelineNoItemsPostsNoNews(t *testing.T) {
	client := &scriptedClient{reply: "{}"}
	pub := &recordingPublisher{channels: map[string]string{"c": "C1"}}
	p := &Pipeline{
		Fetcher:    stubFetcher{entries: []rss.Entry{{Title: "Old", Link: "http://o", Published: "2024-04-30T09:00:00Z"}}},
		Summarizer: newDispatcher(client),
		Publisher:  pub,
		Channel:    "c",
		Now:        func() time.Time { return runDate },
	}

	report := p.Execute(context.Background())

	assert.Empty(t, client.prompts)
	assert.Equal(t, digest.NoNews, report.Result.Kind)
	assert.Equal(t, []string{digest.MsgNoNews}, pub.posted)
}

func TestPipelineSummaryUnavailable(t *testing.T) {
	pub := &recordingPublisher{channels: map[string]string{"c": "C1"}}
	p := &Pipeline{
		Fetcher:    stubFetcher{},
		Summarizer: stubSummarizer{ok: false},
		Publisher:  pub,
		Channel:    "c",
	}

	report := p.Execute(context.Background())

	assert.Equal(t, digest.Empty, report.Result.Kind)
	assert.Equal(t, []string{digest.MsgEmpty}, pub.posted)
}

func TestPipelineLocalDedup(t *testing.T) {
	raw := `{"M&A_News":[{"title":"ABC buys XYZ","url":"http://a"},{"title":"abc buys xyz!","url":"http://b"}]}`
	run := func(dedup bool) Report {
		p := &Pipeline{
			Fetcher:    stubFetcher{},
			Summarizer: stubSummarizer{raw: raw, ok: true},
			LocalDedup: dedup,
			DryRun:     true,
		}
		return p.Execute(context.Background())
	}

	assert.Len(t, run(true).Result.Entries, 1)
	assert.Len(t, run(false).Result.Entries, 2)
}

func TestPipelineChannelNotFound(t *testing.T) {
	pub := &recordingPublisher{channels: map[string]string{}}
	m := metrics.NewRun(runDate)
	p := &Pipeline{
		Fetcher:    stubFetcher{},
		Summarizer: stubSummarizer{raw: digest.NoNewsPayload(), ok: true},
		Publisher:  pub,
		Channel:    "missing",
		Metrics:    m,
	}

	report := p.Execute(context.Background())

	assert.False(t, report.Posted)
	assert.Empty(t, pub.posted)
	assert.Contains(t, m.Stats()["last_error"], "channel not found")
}

func TestPipelinePostFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{channels: map[string]string{"c": "C1"}, postErr: errors.New("channel_not_found")}
	p := &Pipeline{
		Fetcher:    stubFetcher{},
		Summarizer: stubSummarizer{raw: digest.NoNewsPayload(), ok: true},
		Publisher:  pub,
		Channel:    "c",
	}

	report := p.Execute(context.Background())

	assert.False(t, report.Posted)
	assert.Equal(t, digest.MsgNoNews, report.Message)
}

func TestPipelineDryRunSkipsPublisher(t *testing.T) {
	pub := &recordingPublisher{resolveErr: errors.New("should not be called")}
	p := &Pipeline{
		Fetcher:    stubFetcher{},
		Summarizer: stubSummarizer{raw: digest.NoNewsPayload(), ok: true},
		Publisher:  pub,
		DryRun:     true,
	}

	report := p.Execute(context.Background())

	assert.False(t, report.Posted)
	assert.Equal(t, digest.MsgNoNews, report.Message)
	assert.Empty(t, pub.posted)
}

func TestRunFailsOnMissingFeedList(t *testing.T) {
	cfg := &config.Config{FeedsConfigPath: filepath.Join(t.TempDir(), "missing.yaml")}

	err := Run(context.Background(), cfg)

	assert.Error(t, err)
}

func TestRunDryRunWithNoTodayNews(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("[%q]", feedServer(t))), 0o644))

	cfg := &config.Config{
		FeedsConfigPath: path,
		OpenAIAPIKey:    "test",
		Backends:        []ratelimit.ModelBackend{{Provider: llm.ProviderOpenAI, Name: "gpt-4o-mini", RequestsPerMinute: 60}},
		ChannelName:     "mna-news-channel",
		DryRun:          true,
		RequestTimeout:  5 * time.Second,
	}

	// The feed's entries are dated 2024, so no backend call is made.
	assert.NoError(t, Run(context.Background(), cfg))
}
