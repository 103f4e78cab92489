// Package telegram relays messages between the operator's Telegram chat and
// the agent using long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go-dross/pkg/logger"
	"go-dross/pkg/retry"
)

const (
	maxMessageChars = 3900
	pollPause       = 500 * time.Millisecond
)

var ErrNotConfigured = errors.New("telegram bot token or chat id missing")

// Handler answers one message from the operator.
type Handler func(ctx context.Context, text string) string

type Options struct {
	Token  string
	ChatID int64
	// PollTimeout is the long polling timeout in seconds.
	PollTimeout int
	MaxBackoff  time.Duration
	// APIServer overrides the Bot API endpoint.
	APIServer string
}

type Bridge struct {
	bot         *telego.Bot
	chatID      int64
	pollTimeout int
	maxBackoff  time.Duration
	handle      Handler
	l           zerolog.Logger
}

func New(opts Options, handle Handler) (*Bridge, error) {
	if opts.Token == "" || opts.ChatID == 0 {
		return nil, ErrNotConfigured
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 20
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}

	botOpts := []telego.BotOption{
		telego.WithHTTPClient(&http.Client{Timeout: time.Duration(opts.PollTimeout+10) * time.Second}),
		telego.WithDiscardLogger(),
	}
	if opts.APIServer != "" {
		botOpts = append(botOpts, telego.WithAPIServer(opts.APIServer))
	}
	bot, err := telego.NewBot(opts.Token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Bridge{
		bot:         bot,
		chatID:      opts.ChatID,
		pollTimeout: opts.PollTimeout,
		maxBackoff:  opts.MaxBackoff,
		handle:      handle,
		l:           log.With().Str(logger.AgentNameField, "telegram").Logger(),
	}, nil
}

// Run polls for updates until ctx is done. Failed polls are retried with
// exponential backoff.
func (b *Bridge) Run(ctx context.Context) error {
	offset := b.initialOffset(ctx)
	backoff := retry.NewBackoff(time.Second, b.maxBackoff)
	b.l.Info().Int("offset", offset).Msg("telegram polling started")

	for {
		updates, err := b.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
			Offset:  offset,
			Timeout: b.pollTimeout,
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			delay := backoff.Next()
			b.l.Warn().Err(err).Dur("retry_in", delay).Msg("telegram poll failed")
			if !retry.Sleep(ctx, delay) {
				return ctx.Err()
			}
			continue
		}
		backoff.Reset()

		for _, u := range updates {
			offset = u.UpdateID + 1
			b.dispatch(ctx, u)
		}
		if !retry.Sleep(ctx, pollPause) {
			return ctx.Err()
		}
	}
}

// initialOffset skips everything sent while the bridge was down.
func (b *Bridge) initialOffset(ctx context.Context) int {
	updates, err := b.bot.GetUpdates(ctx, &telego.GetUpdatesParams{Offset: -1, Limit: 1})
	if err != nil {
		b.l.Error().Err(err).Msg("unable to initialize telegram offset")
		return 0
	}
	if len(updates) == 0 {
		return 0
	}
	return updates[0].UpdateID + 1
}

func (b *Bridge) dispatch(ctx context.Context, u telego.Update) {
	msg := u.Message
	if msg == nil || msg.Text == "" {
		return
	}
	if msg.Chat.ID != b.chatID {
		b.l.Warn().Int64("chat", msg.Chat.ID).Msg("ignoring message from unauthorized chat")
		return
	}

	b.l.Info().Msg("message received")
	reply := b.handle(ctx, msg.Text)
	if err := b.Notify(ctx, reply); err != nil {
		b.l.Error().Err(err).Msg("unable to send reply")
	}
}

// Notify sends text to the operator's chat, split into chunks Telegram
// accepts. HTML rendering is tried first, then plain text.
func (b *Bridge) Notify(ctx context.Context, text string) error {
	for _, chunk := range split(text, maxMessageChars) {
		msg := tu.Message(tu.ID(b.chatID), html.EscapeString(chunk))
		msg.ParseMode = telego.ModeHTML
		if _, err := b.bot.SendMessage(ctx, msg); err == nil {
			continue
		}
		if _, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(b.chatID), chunk)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

func split(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return []string{"(empty reply)"}
	}
	chunks := make([]string, 0, len(runes)/limit+1)
	for len(runes) > limit {
		chunks = append(chunks, string(runes[:limit]))
		runes = runes[limit:]
	}
	return append(chunks, string(runes))
}
