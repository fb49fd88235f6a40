package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/adapter"
)

var _ adapter.JobNotifier = (*BotNotifier)(nil)

// BotNotifier posts a message to every configured chat when a job finishes.
type BotNotifier struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
	log     *zerolog.Logger
}

func NewBotNotifier(token string, chatIDs []int64, logger *zerolog.Logger) (*BotNotifier, error) {
	return newBotNotifier(token, tgbotapi.APIEndpoint, &http.Client{}, chatIDs, logger)
}

func newBotNotifier(token, endpoint string, client tgbotapi.HTTPClient, chatIDs []int64, logger *zerolog.Logger) (*BotNotifier, error) {
	if token == "" {
		return nil, errors.New("telegram: empty bot token")
	}
	if len(chatIDs) == 0 {
		return nil, errors.New("telegram: no chat ids configured")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	l := logger.With().Str("component", "telegram.notifier").Logger()
	return &BotNotifier{bot: bot, chatIDs: chatIDs, log: &l}, nil
}

// NotifyFinished tries every chat and returns the first failure.
func (b *BotNotifier) NotifyFinished(ctx context.Context, job *model.Job) error {
	text := FinishedText(job)
	var firstErr error
	for _, id := range b.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := b.bot.Send(tgbotapi.NewMessage(id, text)); err != nil {
			b.log.Warn().Err(err).Int64("chat_id", id).Str("job_id", job.ID).Msg("send failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// FinishedText renders the one-message summary of a terminal job.
func FinishedText(job *model.Job) string {
	name := job.DocumentTitle
	if name == "" {
		name = job.WorkflowType
	}
	var sb strings.Builder
	switch job.Status {
	case model.JobStatusCompleted:
		fmt.Fprintf(&sb, "✅ %s completed in %s", name, job.DurationString())
	case model.JobStatusFailed:
		fmt.Fprintf(&sb, "❌ %s failed after %s", name, job.DurationString())
		if job.Error != "" {
			sb.WriteString("\n" + job.Error)
		}
	default:
		fmt.Fprintf(&sb, "%s is %s", name, job.Status)
	}
	fmt.Fprintf(&sb, "\nJob: %s", job.ID)
	return sb.String()
}
