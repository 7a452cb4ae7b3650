// Package feed shares finalized readings to a team chat channel (Slack,
// Discord).
package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/uranai/internal/models"
)

// Publisher is the interface platform-specific implementations satisfy.
type Publisher interface {
	// Publish delivers a post to the platform.
	Publish(ctx context.Context, post Post) error
}

// Post is a platform-neutral message.
type Post struct {
	ChannelID string  // target channel; empty uses the publisher's default
	Text      string  // plain fallback text
	Title     string  // card headline
	Body      string  // detail text
	Color     string  // sidebar color hint (e.g. "#36a64f")
	Fields    []Field // key-value metadata pairs
}

// Field is a key-value pair displayed with a post.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// Feeling colors, matching the usual success/warning/danger palette.
const (
	ColorGood    = "#36a64f"
	ColorSoso    = "#daa038"
	ColorBad     = "#a30200"
	ColorNeutral = "#6c5ce7"
)

// Sharer posts finalized tarot readings through a Publisher.
type Sharer struct {
	pub       Publisher
	channelID string
}

// SharerOpts holds parameters for creating a Sharer.
type SharerOpts struct {
	Publisher Publisher
	ChannelID string // optional; the publisher's default channel otherwise
}

// NewSharer creates a Sharer.
func NewSharer(opts SharerOpts) (*Sharer, error) {
	if opts.Publisher == nil {
		return nil, fmt.Errorf("feed: publisher is required")
	}
	return &Sharer{pub: opts.Publisher, channelID: opts.ChannelID}, nil
}

// Share publishes rec.
func (s *Sharer) Share(ctx context.Context, rec *models.TarotReading) error {
	if rec == nil {
		return fmt.Errorf("feed: share: reading is required")
	}
	post := FormatReading(rec)
	post.ChannelID = s.channelID
	if err := s.pub.Publish(ctx, post); err != nil {
		return fmt.Errorf("feed: share reading %d: %w", rec.ID, err)
	}
	return nil
}

// FormatReading renders a reading as a Post.
func FormatReading(rec *models.TarotReading) Post {
	orientation := "upright"
	if rec.Reversed {
		orientation = "reversed"
	}
	title := fmt.Sprintf("%s drew %s (%s)", rec.UserID, rec.CardName, orientation)

	fields := []Field{
		{Name: "For", Value: targetLabel(rec.Target), Short: true},
		{Name: "Mood", Value: rec.Mood, Short: true},
	}
	if rec.Feeling != "" {
		fields = append(fields, Field{Name: "Feeling", Value: rec.Feeling, Short: true})
	}
	if c := strings.TrimSpace(rec.Comment); c != "" {
		fields = append(fields, Field{Name: "Comment", Value: c})
	}

	return Post{
		Text:   title,
		Title:  title,
		Body:   rec.Interpretation,
		Color:  feelingColor(rec.Feeling),
		Fields: fields,
	}
}

func targetLabel(target string) string {
	switch target {
	case "self":
		return "themselves"
	case "other":
		return "someone else"
	}
	return target
}

func feelingColor(feeling string) string {
	switch feeling {
	case "good":
		return ColorGood
	case "soso":
		return ColorSoso
	case "bad":
		return ColorBad
	}
	return ColorNeutral
}
