// Package notifier delivers new-post notifications to subscribed chats.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"rss_watch/internal/model"
)

const (
	dateLayout = "2006-01-02 15:04 UTC"
	// maxSummary is the excerpt length in runes.
	maxSummary = 500
)

// Sender sends a plain-text message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// DeliveryError reports a failed delivery to a single chat.
type DeliveryError struct {
	ChatID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to chat %d: %v", e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Notifier fans a post out to subscribers. A failing chat does not stop
// delivery to the others.
type Notifier struct {
	sender Sender
	log    *slog.Logger
}

// New creates a Notifier.
func New(sender Sender, log *slog.Logger) *Notifier {
	return &Notifier{sender: sender, log: log}
}

// Notify sends post to every subscriber and returns the number of successful deliveries.
func (n *Notifier) Notify(ctx context.Context, post model.Post, subscribers []model.Subscriber) int {
	text := FormatNotification(post)
	delivered := 0
	for _, chatID := range subscribers {
		if err := n.sender.Send(ctx, chatID, text); err != nil {
			derr := &DeliveryError{ChatID: chatID, Err: err}
			n.log.Error("notify", "feed", post.Feed, "post_id", post.ID, "error", derr)
			continue
		}
		delivered++
	}
	return delivered
}

// FormatNotification formats a post as a notification message.
func FormatNotification(post model.Post) string {
	title := strings.TrimSpace(post.Title)
	if title == "" {
		title = "No title"
	}

	var b strings.Builder
	b.WriteString("New post\n\n")
	b.WriteString(title)
	if post.Link != "" {
		b.WriteString("\n\n")
		b.WriteString(post.Link)
	}
	if post.Published != nil {
		fmt.Fprintf(&b, "\n\nPublished: %s", post.Published.UTC().Format(dateLayout))
	}
	if excerpt := truncate(strings.TrimSpace(post.Summary), maxSummary); excerpt != "" {
		b.WriteString("\n\n")
		b.WriteString(excerpt)
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}
