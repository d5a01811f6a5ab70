// Package publish delivers the formatted digest to a chat channel.
package publish

import (
	"context"
	"errors"

	"github.com/deusflow/mnadigest/internal/digest"
)

const (
	KindSlack    = "slack"
	KindTelegram = "telegram"
)

var ErrChannelNotFound = errors.New("channel not found")

// Publisher resolves a human channel name to the chat's id and posts to it.
type Publisher interface {
	ResolveChannel(ctx context.Context, name string) (string, error)
	PostMessage(ctx context.Context, channelID, text string) error
	// Style is the markup the chat renders.
	Style() digest.Style
}
