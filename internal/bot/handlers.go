package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/cscsync/internal/logger"
	"github.com/example/cscsync/pkg/models"
)

const helpText = `Sync operator bot.

/digest - today's digest
/digest YYYYMMDD - digest of another day
/stats <identity> - totals of one learner`

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	if update.Message.Chat.ID != b.chatID {
		b.log.Warnw("Ignoring command from unknown chat", "chat_id", update.Message.Chat.ID)
		return
	}

	args := strings.TrimSpace(update.Message.CommandArguments())
	switch update.Message.Command() {
	case "start", "help":
		b.reply(helpText)
	case "digest":
		b.handleDigestCommand(ctx, args)
	case "stats":
		b.handleStatsCommand(ctx, args)
	default:
		b.reply("Unknown command. Use /help.")
	}
}

func (b *Bot) handleDigestCommand(ctx context.Context, args string) {
	day := b.Today()
	if args != "" {
		day = models.Day(args)
		if !day.Valid() {
			b.reply("Day must look like 20240131.")
			return
		}
	}
	if err := b.SendDigest(ctx, day); err != nil {
		b.log.Errorw("Digest command failed", logger.FieldDay, day, logger.FieldError, err)
		b.reply("Digest is not available right now.")
	}
}

func (b *Bot) handleStatsCommand(ctx context.Context, identity string) {
	if identity == "" {
		b.reply("Usage: /stats <identity>")
		return
	}
	day := b.Today()
	sums, err := b.summaries.Summaries(ctx, day)
	if err != nil {
		b.log.Errorw("Stats command failed", logger.FieldIdentity, identity, logger.FieldError, err)
		b.reply("Statistics are not available right now.")
		return
	}
	for _, s := range sums {
		if s.Identity == identity {
			b.reply(fmt.Sprintf("`%s`\nQuestions: %d\nCorrect: %d\nWrong: %d\nStreak3 total: %d\nStreak3 today: %d",
				s.Identity, s.Questions, s.CorrectTotal, s.WrongTotal, s.Streak3Total, s.Streak3Today))
			return
		}
	}
	b.reply(fmt.Sprintf("No progress recorded for `%s`.", identity))
}

func (b *Bot) reply(text string) {
	if err := b.send(text); err != nil {
		b.log.Warnw("Failed to reply", logger.FieldError, err)
	}
}
