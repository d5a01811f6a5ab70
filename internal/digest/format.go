package digest

import (
	"fmt"
	"html"
	"strings"
)

// Fixed messages for results that carry no entries.
const (
	MsgNoNews          = "No M&A news today."
	MsgEmpty           = "No summary could be produced today."
	MsgInvalidJSON     = "Invalid JSON input."
	MsgUnexpectedShape = "Unexpected summary format."

	heading = "🏡 Real Estate Market M&A Updates"
)

// Style selects the link markup of the target chat.
type Style int

const (
	// Slack renders mrkdwn: *bold* and <url|title>.
	Slack Style = iota
	// HTML renders Telegram-flavoured HTML: <b> and <a href>.
	HTML
)

// Format renders r for the chat. It returns a non-empty message for every input.
func Format(r Result, style Style) string {
	switch r.Kind {
	case NoNews:
		return MsgNoNews
	case Empty:
		return MsgEmpty
	case InvalidJSON:
		return MsgInvalidJSON
	case Items:
		if len(r.Entries) == 0 {
			return MsgNoNews
		}
	default:
		return MsgUnexpectedShape
	}

	var b strings.Builder
	if style == HTML {
		fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(heading))
		for _, e := range r.Entries {
			fmt.Fprintf(&b, "📢: <a href=\"%s\">%s</a>\n", html.EscapeString(e.URL), html.EscapeString(e.Title))
		}
	} else {
		fmt.Fprintf(&b, "*%s*\n\n", slackEscape(heading))
		for _, e := range r.Entries {
			fmt.Fprintf(&b, "📢: <%s|%s>\n", e.URL, slackEscape(e.Title))
		}
	}
	return strings.TrimSpace(b.String())
}

var slackReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// slackEscape escapes the three characters Slack treats as control sequences.
func slackEscape(s string) string {
	return slackReplacer.Replace(s)
}

// FormatRaw parses a raw backend answer and renders it.
func FormatRaw(raw string, style Style) string {
	return Format(Parse(raw), style)
}
