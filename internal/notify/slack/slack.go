// Package slack implements the notify Adapter for Slack via the Web API.
// Outbound only: BeeSwarm posts events, it does not listen.
package slack

import (
	"context"
	"fmt"
	"time"

	"github.com/brunobertapeli/BeeSwarmv2-sub004/internal/notify"
	slackapi "github.com/slack-go/slack"
)

// maxRetries is the max number of retries for rate-limited API calls.
const maxRetries = 3

// client abstracts the Slack API methods we use, enabling test mocks.
type client interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Adapter implements notify.Adapter for Slack.
type Adapter struct {
	client    client
	channelID string
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // channel to post to
	// For testing: inject a mock client instead of the real Slack API.
	Client client
}

// New creates a Slack Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel id is required")
	}
	c := opts.Client
	if c == nil {
		c = slackapi.New(opts.BotToken)
	}
	return &Adapter{client: c, channelID: opts.ChannelID}, nil
}

// Send posts a formatted event as an attachment, retrying on rate limits.
func (a *Adapter) Send(ctx context.Context, ev notify.FormattedEvent) error {
	attachment := slackapi.Attachment{
		Title: ev.Title,
		Text:  ev.Body,
		Color: ev.Color,
	}
	for _, f := range ev.Fields {
		attachment.Fields = append(attachment.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, _, err := a.client.PostMessageContext(ctx, a.channelID, slackapi.MsgOptionAttachments(attachment))
		if err == nil {
			return nil
		}
		lastErr = err

		if rle, ok := err.(*slackapi.RateLimitedError); ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(rle.RetryAfter):
				continue
			}
		}
		break
	}
	return fmt.Errorf("slack: post message: %w", lastErr)
}

// Close satisfies notify.Adapter; the Web API client holds no connection.
func (a *Adapter) Close() error { return nil }
