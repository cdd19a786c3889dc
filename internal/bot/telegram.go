// Package bot pushes keeper activity alerts to Telegram.
package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// TelegramBot sends one-way notifications to a configured chat.
type TelegramBot struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramBot connects to the bot API. Token and chat id come from
// config; an empty token is a caller-side decision, not handled here.
func NewTelegramBot(token string, chatID int64) (*TelegramBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")

	return &TelegramBot{api: api, chatID: chatID}, nil
}

// BidSubmitted alerts on a new or replaced bid.
func (b *TelegramBot) BidSubmitted(kind string, id uint64, price decimal.Decimal, replaced bool) {
	action := "BID SUBMITTED"
	emoji := "✅"
	if replaced {
		action = "BID REPLACED"
		emoji = "🔄"
	}

	msg := fmt.Sprintf(`%s *%s*

📊 %s auction #%d
💵 Price: *%s*`,
		emoji, action,
		kind, id,
		price.StringFixed(6),
	)

	b.sendMarkdown(msg)
}

// AuctionSettled alerts on a finished auction the keeper settled.
func (b *TelegramBot) AuctionSettled(kind string, id uint64, guy string) {
	msg := fmt.Sprintf(`💰 *AUCTION SETTLED*

📊 %s auction #%d
🏆 Winner: `+"`%s`",
		kind, id, guy,
	)

	b.sendMarkdown(msg)
}

// NotifyStartup announces the keeper coming online.
func (b *TelegramBot) NotifyStartup(kind, house string, dryRun bool) {
	mode := "live"
	if dryRun {
		mode = "dry-run"
	}
	msg := fmt.Sprintf(`🚀 *KEEPER STARTED*

📊 Type: *%s*
🏠 House: `+"`%s`"+`
🎛 Mode: *%s*`,
		kind, house, mode,
	)

	b.sendMarkdown(msg)
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
