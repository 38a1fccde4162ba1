package bot

import (
	"context"
	"errors"
	"fmt"

	"rss_watch/internal/registry"
	"rss_watch/internal/scheduler"
)

const maxMessageLen = 4000

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	if _, err := b.state.AddSubscriber(ctx, chatID); err != nil {
		b.log.Error("subscribe", "chat_id", chatID, "error", err)
	}
	b.reply(chatID, FormatWelcome(len(b.state.Feeds())))
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, helpText)
}

func (b *Bot) handleStop(ctx context.Context, chatID int64) {
	removed, err := b.state.RemoveSubscriber(ctx, chatID)
	if err != nil {
		b.log.Error("unsubscribe", "chat_id", chatID, "error", err)
	}
	if !removed {
		b.reply(chatID, "You are not subscribed. Use /start to subscribe.")
		return
	}
	b.reply(chatID, "You will no longer receive notifications. Use /start to subscribe again.")
}

func (b *Bot) handleFeeds(chatID int64) {
	feeds := b.state.Feeds()
	if len(feeds) == 0 {
		b.reply(chatID, noFeedsText)
		return
	}
	msg := newMessage(chatID, FormatFeedList(feeds))
	msg.ReplyMarkup = feedsKeyboard(feeds)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send feed list", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleAddFeed(ctx context.Context, chatID int64, args string) {
	raw := ParseURLArg(args)
	if raw == "" {
		b.reply(chatID, "Please provide a feed URL.\nUsage: /addfeed <url>")
		return
	}

	url, err := registry.NormalizeURL(raw)
	if err != nil {
		b.reply(chatID, "Invalid feed URL. Only http and https URLs are supported.")
		return
	}
	if b.state.HasFeed(url) {
		b.reply(chatID, "This feed is already being monitored.")
		return
	}

	b.reply(chatID, "Validating RSS feed...")
	posts, err := b.fetcher.Fetch(ctx, url)
	if err != nil {
		b.log.Warn("validate feed", "url", url, "error", err)
		b.reply(chatID, "Could not fetch the RSS feed. Please check the URL and try again.")
		return
	}

	// A save error leaves the feed registered in memory; the save is retried later.
	added, err := b.state.AddFeed(ctx, url, posts)
	if err != nil {
		b.log.Error("add feed", "url", url, "error", err)
	}
	if !added {
		b.reply(chatID, "This feed is already being monitored.")
		return
	}

	b.reply(chatID, fmt.Sprintf("Successfully added feed!\nFound %d existing posts.\nYou'll be notified of new posts from now on.", len(posts)))
}

func (b *Bot) handleRemoveFeed(ctx context.Context, chatID int64, args string) {
	raw := ParseURLArg(args)
	if raw == "" {
		b.reply(chatID, "Please provide a feed URL.\nUsage: /removefeed <url>")
		return
	}
	b.removeFeed(ctx, chatID, raw)
}

func (b *Bot) removeFeed(ctx context.Context, chatID int64, url string) {
	removed, err := b.state.RemoveFeed(ctx, url)
	if err != nil {
		b.log.Error("remove feed", "url", url, "error", err)
	}
	if !removed {
		b.reply(chatID, "This feed is not being monitored.")
		return
	}
	b.reply(chatID, "Removed feed: "+registry.Key(url))
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64) {
	if b.poller == nil {
		b.reply(chatID, "Checking is not available right now.")
		return
	}

	b.reply(chatID, "Checking feeds for updates...")
	res, err := b.poller.Check(ctx)
	switch {
	case errors.Is(err, scheduler.ErrBusy):
		b.reply(chatID, "A check is already in progress, please try again shortly.")
		return
	case err != nil:
		b.log.Error("manual check", "chat_id", chatID, "error", err)
		b.reply(chatID, fmt.Sprintf("Check failed: %v", err))
		return
	}
	b.reply(chatID, FormatCheckResult(res))
}

func (b *Bot) handleList(ctx context.Context, chatID int64, args string) {
	n, err := ParseRecentArg(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	if len(b.state.Feeds()) == 0 {
		b.reply(chatID, noFeedsText)
		return
	}
	if b.poller == nil {
		b.reply(chatID, "Listing is not available right now.")
		return
	}

	b.reply(chatID, "Fetching latest posts...")
	posts, failed := b.poller.Recent(ctx, n)
	if len(failed) > 0 {
		b.log.Warn("list recent", "failed_feeds", len(failed))
	}
	if len(posts) == 0 {
		b.reply(chatID, "No posts found in any feed.")
		return
	}
	for _, part := range SplitMessage(FormatRecent(posts), maxMessageLen) {
		b.reply(chatID, part)
	}
}
