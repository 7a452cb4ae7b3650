// Package slack implements the feed Publisher for Slack using the Web API.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/uranai/internal/feed"
)

// maxRetries is the max number of retries for rate-limited API calls.
const maxRetries = 3

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Publisher posts to a Slack channel.
type Publisher struct {
	client    slackClient
	channelID string
}

// PublisherOpts holds parameters for creating a Slack Publisher.
type PublisherOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // default channel to post to
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Slack Publisher.
func New(opts PublisherOpts) (*Publisher, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	p := &Publisher{client: opts.Client, channelID: opts.ChannelID}
	if p.client == nil {
		p.client = slackapi.New(opts.BotToken)
	}
	return p, nil
}

// Publish delivers a post as a message with one attachment.
func (p *Publisher) Publish(ctx context.Context, post feed.Post) error {
	channelID := post.ChannelID
	if channelID == "" {
		channelID = p.channelID
	}
	if channelID == "" {
		return fmt.Errorf("slack: no channel specified")
	}

	options := buildMessageOptions(post)
	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := p.client.PostMessage(channelID, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

func buildMessageOptions(post feed.Post) []slackapi.MsgOption {
	var options []slackapi.MsgOption
	if post.Title != "" || post.Body != "" || len(post.Fields) > 0 {
		options = append(options, slackapi.MsgOptionAttachments(postToAttachment(post)))
	}
	if post.Text != "" {
		options = append(options, slackapi.MsgOptionText(post.Text, false))
	}
	return options
}

func postToAttachment(post feed.Post) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    post.Title,
		Text:     post.Body,
		Color:    post.Color,
		Fallback: post.Title,
	}
	for _, f := range post.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return att
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}
		log.Printf("slack: rate limited (attempt %d/%d), retrying in %v", attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
