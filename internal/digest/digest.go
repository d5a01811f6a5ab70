// Package digest interprets the summarization backend's answer and renders it
// as a chat message.
package digest

import (
	"encoding/json"
	"strings"
)

const (
	NewsKey     = "M&A_News"
	NoNewsValue = "No News"
)

// Kind tags what a Result holds.
type Kind int

const (
	// Empty means no backend answer was produced at all.
	Empty Kind = iota
	NoNews
	Items
	// InvalidJSON means the answer was not decodable JSON.
	InvalidJSON
	// UnexpectedShape means valid JSON without the expected news list.
	UnexpectedShape
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "empty"
	case NoNews:
		return "no_news"
	case Items:
		return "items"
	case InvalidJSON:
		return "invalid_json"
	case UnexpectedShape:
		return "unexpected_shape"
	default:
		return "unknown"
	}
}

type Entry struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type Result struct {
	Kind    Kind
	Entries []Entry
}

// NoNewsPayload is the answer the backend is told to give when nothing is relevant.
func NoNewsPayload() string {
	return `{"` + NewsKey + `": "` + NoNewsValue + `"}`
}

// Parse classifies a raw backend answer. It never fails; every input maps to a Kind.
func Parse(raw string) Result {
	raw = cleanJSONResponse(raw)
	if raw == "" {
		return Result{Kind: Empty}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		var v interface{}
		if json.Unmarshal([]byte(raw), &v) == nil {
			return Result{Kind: UnexpectedShape}
		}
		return Result{Kind: InvalidJSON}
	}

	value, ok := obj[NewsKey]
	if !ok {
		return Result{Kind: UnexpectedShape}
	}

	var marker string
	if err := json.Unmarshal(value, &marker); err == nil {
		if strings.EqualFold(strings.TrimSpace(marker), NoNewsValue) {
			return Result{Kind: NoNews}
		}
		return Result{Kind: UnexpectedShape}
	}

	var list []Entry
	if err := json.Unmarshal(value, &list); err != nil {
		return Result{Kind: UnexpectedShape}
	}
	if len(list) == 0 {
		return Result{Kind: NoNews}
	}

	entries := make([]Entry, 0, len(list))
	for _, e := range list {
		e.Title = strings.TrimSpace(e.Title)
		e.URL = strings.TrimSpace(e.URL)
		if e.Title == "" || e.URL == "" {
			continue
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return Result{Kind: UnexpectedShape}
	}
	return Result{Kind: Items, Entries: entries}
}

// cleanJSONResponse drops markdown fences and prose around the JSON object.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
