// Package telegram posts chat messages through a Telegram bot.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"
)

// Client wraps a bot with a global send rate.
type Client struct {
	bot     *bot.Bot
	limiter *rate.Limiter
}

// NewClient builds a bot client without calling getMe, so construction never
// touches the network.
func NewClient(token string, ratePerSecond int) (*Client, error) {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return &Client{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
	}, nil
}

// Send posts a MarkdownV2 message to chatID. Build text with FormatMessage.
func (c *Client) Send(ctx context.Context, chatID, text string) error {
	id, err := ParseChatID(chatID)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}
	params := &bot.SendMessageParams{
		ChatID:    id,
		Text:      text,
		ParseMode: "MarkdownV2",
	}
	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", id, err)
	}
	return nil
}

// ParseChatID converts a stored chat id to the numeric form the Bot API expects.
func ParseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid telegram chat_id %q", s)
	}
	return id, nil
}

var linkURLEscaper = strings.NewReplacer(`\`, `\\`, `)`, `\)`)

// FormatMessage renders a bold title, the message and an optional link as
// MarkdownV2 with every user-supplied part escaped.
func FormatMessage(title, message, linkText, linkURL string) string {
	text := "*" + bot.EscapeMarkdown(title) + "*\n" + bot.EscapeMarkdown(message)
	if linkURL != "" {
		if linkText == "" {
			linkText = linkURL
		}
		text += "\n[" + bot.EscapeMarkdown(linkText) + "](" + linkURLEscaper.Replace(linkURL) + ")"
	}
	return text
}
