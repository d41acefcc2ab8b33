package bot

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cscsync/pkg/models"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

type fakeSummaries struct {
	days []models.Day
	sums []models.IdentitySummary
	err  error
}

func (f *fakeSummaries) Summaries(_ context.Context, day models.Day) ([]models.IdentitySummary, error) {
	f.days = append(f.days, day)
	return f.sums, f.err
}

func newTestBot() (*Bot, *fakeSender, *fakeSummaries) {
	sender := &fakeSender{}
	sums := &fakeSummaries{sums: []models.IdentitySummary{
		{Identity: "alice@example.com", Questions: 3, CorrectTotal: 10, WrongTotal: 2, Streak3Total: 2, Streak3Today: 1},
	}}
	b := NewWithSender(sender, 42, sums, time.UTC, nil)
	b.now = func() time.Time { return time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC) }
	return b, sender, sums
}

func command(chatID int64, text string, cmdLen int) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func TestFormatDigest(t *testing.T) {
	assert.Contains(t, FormatDigest("20240501", nil), "No progress recorded yet.")

	text := FormatDigest("20240501", []models.IdentitySummary{
		{Identity: "a", Questions: 2, CorrectTotal: 3, WrongTotal: 1},
		{Identity: "b", Questions: 1, CorrectTotal: 1},
	})
	assert.Contains(t, text, "*Sync digest 20240501*")
	assert.Contains(t, text, "`a`: 2 questions, 3 correct / 1 wrong")
	assert.Contains(t, text, "Learners: 2, questions: 3, answers: 5")
}

func TestSendDigest(t *testing.T) {
	b, sender, sums := newTestBot()
	require.NoError(t, b.SendDigest(context.Background(), "20240501"))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, sender.sent[0].ParseMode)
	assert.Equal(t, []models.Day{"20240501"}, sums.days)

	sums.err = errors.New("database is locked")
	assert.Error(t, b.SendDigest(context.Background(), "20240501"))
}

func TestDigestCommand(t *testing.T) {
	b, sender, sums := newTestBot()

	b.handleUpdate(context.Background(), command(42, "/digest", 7))
	b.handleUpdate(context.Background(), command(42, "/digest 20240430", 7))
	b.handleUpdate(context.Background(), command(42, "/digest yesterday", 7))

	assert.Equal(t, []models.Day{"20240501", "20240430"}, sums.days)
	require.Len(t, sender.sent, 3)
	assert.Contains(t, sender.sent[2].Text, "Day must look like")
}

func TestStatsCommand(t *testing.T) {
	b, sender, _ := newTestBot()

	b.handleUpdate(context.Background(), command(42, "/stats alice@example.com", 6))
	b.handleUpdate(context.Background(), command(42, "/stats bob@example.com", 6))

	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[0].Text, "Correct: 10")
	assert.Contains(t, sender.sent[1].Text, "No progress recorded")
}

func TestIgnoresOtherChats(t *testing.T) {
	b, sender, _ := newTestBot()
	b.handleUpdate(context.Background(), command(7, "/digest", 7))
	b.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{Text: "hi", Chat: &tgbotapi.Chat{ID: 42}}})
	assert.Empty(t, sender.sent)
}

func TestBotConfigEnabled(t *testing.T) {
	assert.False(t, BotConfig{}.Enabled())
	assert.False(t, BotConfig{Token: "t"}.Enabled())
	assert.True(t, BotConfig{Token: "t", ChatID: 1}.Enabled())
}
