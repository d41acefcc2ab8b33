// Package bot is the operator-facing Telegram bot. It posts a daily sync
// digest and answers /digest and /stats in the configured chat.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/cscsync/internal/logger"
	"github.com/example/cscsync/pkg/models"
)

// Sender is the part of the Telegram API the bot sends through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Summarizer returns per-identity rollups for a day.
type Summarizer interface {
	Summaries(ctx context.Context, day models.Day) ([]models.IdentitySummary, error)
}

// Bot represents the Telegram operator bot
type Bot struct {
	api       *tgbotapi.BotAPI
	sender    Sender
	chatID    int64
	summaries Summarizer
	loc       *time.Location
	now       func() time.Time
	log       *zap.SugaredLogger
}

// New authorizes against Telegram and creates the bot.
func New(cfg BotConfig, summaries Summarizer, loc *time.Location, log *zap.SugaredLogger) (*Bot, error) {
	if !cfg.Enabled() {
		return nil, errors.New("telegram token and digest chat must both be set")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create bot")
	}
	b := NewWithSender(api, cfg.ChatID, summaries, loc, log)
	b.api = api
	b.log.Infow("Authorized on account", "account", api.Self.UserName)
	return b, nil
}

// NewWithSender creates a bot that sends through s without polling updates.
func NewWithSender(s Sender, chatID int64, summaries Summarizer, loc *time.Location, log *zap.SugaredLogger) *Bot {
	if loc == nil {
		loc = time.UTC
	}
	return &Bot{
		sender:    s,
		chatID:    chatID,
		summaries: summaries,
		loc:       loc,
		now:       time.Now,
		log:       logger.Named(log, "bot"),
	}
}

// Today returns the current day in the bot's timezone.
func (b *Bot) Today() models.Day {
	return models.DayOf(b.now(), b.loc)
}

// SendDigest posts the rollup of day to the operator chat.
func (b *Bot) SendDigest(ctx context.Context, day models.Day) error {
	sums, err := b.summaries.Summaries(ctx, day)
	if err != nil {
		return errors.Wrap(err, "failed to build digest")
	}
	if err := b.send(FormatDigest(day, sums)); err != nil {
		return errors.Wrap(err, "failed to send digest")
	}
	b.log.Infow("Digest sent", logger.FieldDay, day, logger.FieldCount, len(sums))
	return nil
}

// Run polls updates until ctx is canceled. It is a no-op for bots created
// with NewWithSender.
func (b *Bot) Run(ctx context.Context) {
	if b.api == nil {
		return
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}
	b.log.Infow("Bot stopped")
}

func (b *Bot) send(text string) error {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := b.sender.Send(msg)
	return err
}

// FormatDigest renders summaries as a Markdown message.
func FormatDigest(day models.Day, sums []models.IdentitySummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *Sync digest %s*\n\n", day)
	if len(sums) == 0 {
		sb.WriteString("No progress recorded yet.")
		return sb.String()
	}

	var questions int
	var correct, wrong int64
	for _, s := range sums {
		fmt.Fprintf(&sb, "`%s`: %d questions, %d correct / %d wrong, streak3 today %d, wrong streak3 today %d\n",
			s.Identity, s.Questions, s.CorrectTotal, s.WrongTotal, s.Streak3Today, s.WrongStreak3Today)
		questions += s.Questions
		correct += s.CorrectTotal
		wrong += s.WrongTotal
	}
	fmt.Fprintf(&sb, "\nLearners: %d, questions: %d, answers: %d", len(sums), questions, correct+wrong)
	return sb.String()
}
