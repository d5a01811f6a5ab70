package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/deusflow/mnadigest/internal/digest"
	"github.com/deusflow/mnadigest/internal/logger"
)

const slackPageSize = 200

type Slack struct {
	client *slack.Client
}

func NewSlack(token string, opts ...slack.Option) *Slack {
	return &Slack{client: slack.New(token, opts...)}
}

func (s *Slack) Style() digest.Style { return digest.Slack }

// ResolveChannel pages through public and private channels and returns the id
// of the first one whose name matches case-insensitively. A leading '#' is ignored.
func (s *Slack) ResolveChannel(ctx context.Context, name string) (string, error) {
	want := strings.TrimPrefix(strings.TrimSpace(name), "#")
	params := &slack.GetConversationsParameters{
		Types:           []string{"public_channel", "private_channel"},
		ExcludeArchived: true,
		Limit:           slackPageSize,
	}

	pages := 0
	for {
		channels, cursor, err := s.client.GetConversationsContext(ctx, params)
		if err != nil {
			return "", fmt.Errorf("failed to list slack channels: %w", err)
		}
		pages++
		for _, ch := range channels {
			if strings.EqualFold(ch.Name, want) {
				logger.Debug("resolved slack channel", "name", want, "id", ch.ID, "pages", pages)
				return ch.ID, nil
			}
		}
		if cursor == "" {
			break
		}
		params.Cursor = cursor
	}
	return "", fmt.Errorf("%w: %s", ErrChannelNotFound, want)
}

// PostMessage sends text as mrkdwn. The text is expected to be escaped already.
func (s *Slack) PostMessage(ctx context.Context, channelID, text string) error {
	_, ts, err := s.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("failed to post slack message: %w", err)
	}
	logger.Info("message sent to slack", "channel", channelID, "ts", ts)
	return nil
}
