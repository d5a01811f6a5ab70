// Package news turns raw feed entries into the day's working set of news items.
package news

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/deusflow/mnadigest/internal/rss"
)

const (
	// UnknownDate marks an entry whose published timestamp could not be parsed.
	// It never equals a formatted calendar date, so such entries are never "today".
	UnknownDate = "unknown"

	publishedLayout = "2006-01-02T15:04:05Z"
	dateLayout      = "2006-01-02"
)

var tagPattern = regexp.MustCompile(`<.*?>`)

// Item is one normalized news record.
type Item struct {
	Date  string
	Title string
	URL   string
}

// ParseDate returns the YYYY-MM-DD part of a published timestamp, or UnknownDate.
func ParseDate(published string) string {
	t, err := time.Parse(publishedLayout, published)
	if err != nil {
		return UnknownDate
	}
	return t.Format(dateLayout)
}

// CleanTitle removes markup tags and surrounding whitespace.
func CleanTitle(title string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(title, ""))
}

// ExtractActualURL unwraps redirect links (Google News, Google Alerts) that carry
// the destination in a "url" query parameter. Anything else is returned unchanged.
func ExtractActualURL(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	target := u.Query().Get("url")
	if target == "" {
		return link
	}
	return target
}

// Normalize converts entries to items and keeps only the ones published on today's date.
// today is compared by its own calendar date, so pass time.Now() for the local date.
func Normalize(entries []rss.Entry, today time.Time) []Item {
	day := today.Format(dateLayout)

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		date := ParseDate(e.Published)
		if date != day {
			continue
		}
		items = append(items, Item{
			Date:  date,
			Title: CleanTitle(e.Title),
			URL:   ExtractActualURL(e.Link),
		})
	}
	return items
}
