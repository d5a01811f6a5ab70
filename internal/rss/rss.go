package rss

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/mnadigest/internal/logger"
)

var ErrNoFeeds = errors.New("feed list is empty")

// Entry is the raw shape of one feed item. Published is kept verbatim.
type Entry struct {
	Title     string
	Link      string
	Published string
}

// FeedsConfig is the mapping form of the feed list:
// feeds:
//   - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// LoadFeeds reads the feed list. The file holds either a plain list, e.g.
// ['https://a', 'https://b'], or a mapping with a "feeds" key.
func LoadFeeds(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feed list: %w", err)
	}
	return ParseFeeds(data)
}

// ParseFeeds decodes a feed list document; see LoadFeeds.
func ParseFeeds(data []byte) ([]string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse feed list: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, ErrNoFeeds
	}

	var raw []string
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode feed list: %w", err)
		}
	case yaml.MappingNode:
		var cfg FeedsConfig
		if err := doc.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode feed list: %w", err)
		}
		raw = cfg.Feeds
	default:
		return nil, fmt.Errorf("feed list must be a list of URLs")
	}

	seen := make(map[string]struct{}, len(raw))
	feeds := make([]string, 0, len(raw))
	for _, f := range raw {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		feeds = append(feeds, f)
	}
	if len(feeds) == 0 {
		return nil, ErrNoFeeds
	}
	return feeds, nil
}

// Fetcher downloads and parses feeds one after another.
type Fetcher struct {
	parser  *gofeed.Parser
	timeout time.Duration
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{parser: gofeed.NewParser(), timeout: timeout}
}

// Fetch returns the entries of every feed that could be parsed. Failing feeds
// are logged and skipped.
func (f *Fetcher) Fetch(ctx context.Context, urls []string) []Entry {
	var all []Entry
	ok := 0

	for _, u := range urls {
		items, err := f.fetchOne(ctx, u)
		if err != nil {
			logger.Warn("feed fetch failed", "url", u, "error", err)
			continue
		}
		for _, it := range items {
			all = append(all, toEntry(it))
		}
		ok++
		logger.Debug("feed loaded", "url", u, "entries", len(items))
	}

	logger.Info("feeds processed", "ok", ok, "total", len(urls), "entries", len(all))
	return all
}

func (f *Fetcher) fetchOne(ctx context.Context, u string) ([]*gofeed.Item, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	feed, err := f.parser.ParseURLWithContext(u, ctx)
	if err != nil {
		return nil, err
	}
	return feed.Items, nil
}

func toEntry(it *gofeed.Item) Entry {
	e := Entry{Title: it.Title, Link: it.Link, Published: it.Published}
	// Atom feeds (Google Alerts) may carry the address only in the links list.
	if e.Link == "" && len(it.Links) > 0 {
		e.Link = it.Links[0]
	}
	return e
}
