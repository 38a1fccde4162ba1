package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"rss_watch/internal/model"
	"rss_watch/internal/scheduler"
)

const (
	dateLayout  = "2006-01-02 15:04 UTC"
	noFeedsText = "No RSS feeds are being monitored."
)

const helpText = `Feed management:
/feeds - list monitored feeds
/addfeed <url> - add a new RSS feed
/removefeed <url> - remove a feed

Posts:
/check - check all feeds for new posts now
/list [n] - show the n most recent posts (default 10, max 50)

Subscription:
/start - receive notifications in this chat
/stop - stop receiving notifications`

// FormatWelcome formats the /start reply.
func FormatWelcome(feedCount int) string {
	return fmt.Sprintf(`Welcome to RSS Feed Monitor Bot!

You will be notified here about new posts.

Available commands:
/feeds - List all monitored RSS feeds
/addfeed <url> - Add a new RSS feed
/removefeed <url> - Remove an RSS feed
/check - Manually check feeds for updates
/list [n] - Show the latest posts from all feeds
/stop - Stop receiving notifications

Currently monitoring %d feed(s)`, feedCount)
}

// FormatFeedList formats the monitored feeds as a numbered list.
func FormatFeedList(feeds []string) string {
	if len(feeds) == 0 {
		return noFeedsText
	}
	var b strings.Builder
	b.WriteString("Monitored RSS Feeds:\n\n")
	for i, url := range feeds {
		fmt.Fprintf(&b, "%d. %s\n", i+1, url)
	}
	return b.String()
}

// FormatCheckResult formats the outcome of a manual check.
func FormatCheckResult(res scheduler.Result) string {
	var b strings.Builder
	if res.NewPosts == 0 {
		b.WriteString("No new posts found.")
	} else {
		fmt.Fprintf(&b, "Found %d new post(s)!", res.NewPosts)
	}
	if res.Seeded > 0 {
		fmt.Fprintf(&b, "\n%d feed(s) checked for the first time; their existing posts were skipped.", res.Seeded)
	}
	if len(res.Failed) > 0 {
		fmt.Fprintf(&b, "\n%d feed(s) could not be fetched:", len(res.Failed))
		for _, f := range res.Failed {
			fmt.Fprintf(&b, "\n- %s", f.URL)
		}
	}
	return b.String()
}

// FormatRecent formats posts for /list.
func FormatRecent(posts []model.Post) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Last %d Posts:\n\n", len(posts))
	for i, p := range posts {
		title := strings.TrimSpace(p.Title)
		if title == "" {
			title = "No title"
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, title)
		if p.Link != "" {
			fmt.Fprintf(&b, "   %s\n", p.Link)
		}
		if p.Published != nil {
			fmt.Fprintf(&b, "   %s\n", p.Published.UTC().Format(dateLayout))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// SplitMessage splits text into chunks of at most limit characters,
// preferring line boundaries.
func SplitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		parts []string
		cur   strings.Builder
		n     int
	)
	flush := func() {
		if n > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		ln := utf8.RuneCountInString(line)
		if n+ln > limit {
			flush()
		}
		for ln > limit {
			r := []rune(line)
			parts = append(parts, string(r[:limit]))
			line = string(r[limit:])
			ln -= limit
		}
		cur.WriteString(line)
		n += ln
	}
	flush()
	return parts
}

func newMessage(chatID int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	return msg
}

func feedsKeyboard(feeds []string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(feeds))
	for i, url := range feeds {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Remove %d", i+1), cbRemoveConfirm+":"+feedKey(url)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
