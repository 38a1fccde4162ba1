package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"rss_watch/internal/model"
	"rss_watch/internal/scheduler"
	"rss_watch/internal/state"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// FeedFetcher retrieves the current posts of a feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]model.Post, error)
}

// Poller runs polling cycles on demand.
type Poller interface {
	Check(ctx context.Context) (scheduler.Result, error)
	Recent(ctx context.Context, n int) ([]model.Post, []scheduler.FeedFailure)
}

// Bot is the Telegram bot that handles user commands and sends notifications.
type Bot struct {
	api     telegramAPI
	state   *state.Manager
	fetcher FeedFetcher
	poller  Poller
	log     *slog.Logger
}

// New creates a Bot with the given Telegram token.
func New(token string, st *state.Manager, f FeedFetcher, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("authorized", "username", api.Self.UserName)

	return &Bot{
		api:     api,
		state:   st,
		fetcher: f,
		log:     log,
	}, nil
}

// SetPoller sets the scheduler used by /check and /list. It must be called before Run.
func (b *Bot) SetPoller(p Poller) {
	b.poller = p
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
// Updates are handled concurrently; Run waits for in-flight handlers before returning.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	b.handleCommand(ctx, update.Message)
}

// Send sends a plain-text message to the given chat with link previews disabled.
func (b *Bot) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Send(newMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(newMessage(chatID, text)); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID)
	case "help":
		b.handleHelp(chatID)
	case "stop":
		b.handleStop(ctx, chatID)
	case "feeds":
		b.handleFeeds(chatID)
	case "addfeed":
		b.handleAddFeed(ctx, chatID, args)
	case "removefeed":
		b.handleRemoveFeed(ctx, chatID, args)
	case "check":
		b.handleCheck(ctx, chatID)
	case "list":
		b.handleList(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
