package bot

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cbRemoveConfirm = "rmconfirm"
	cbRemove        = "rm"
	cbNoop          = "noop"
)

// feedKey is a short stable token for a feed URL; callback data is limited to 64 bytes.
func feedKey(url string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(url))
	return fmt.Sprintf("%08x", h.Sum32())
}

func (b *Bot) feedByKey(key string) (string, bool) {
	for _, url := range b.state.Feeds() {
		if feedKey(url) == key {
			return url, true
		}
	}
	return "", false
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return
	}
	action, key := parts[0], parts[1]

	attrs := []any{"action", action, "key", key, "chat_id", chatID}
	if cb.From != nil {
		attrs = append(attrs, "user_id", cb.From.ID, "username", cb.From.UserName)
	}
	b.log.Info("callback", attrs...)

	switch action {
	case cbRemoveConfirm:
		url, ok := b.feedByKey(key)
		if !ok {
			b.reply(chatID, "This feed is not being monitored.")
			return
		}
		msg := newMessage(chatID, fmt.Sprintf("Stop monitoring %s?", url))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Yes, remove", cbRemove+":"+key),
				tgbotapi.NewInlineKeyboardButtonData("Cancel", cbNoop+":0"),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send remove confirmation", "error", err)
		}
	case cbRemove:
		url, ok := b.feedByKey(key)
		if !ok {
			b.reply(chatID, "This feed is not being monitored.")
			return
		}
		b.removeFeed(ctx, chatID, url)
	}
}
