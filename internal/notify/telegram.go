package notify

import (
	"fmt"

	"finqueue/internal/config"
	"finqueue/internal/events"
	"finqueue/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the slice of the Telegram API the alerter needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter pushes an ops message when an entry exhausts its retries. A dead
// entry no longer delivers itself, so it needs a human.
type Alerter struct {
	sender      Sender
	chatID      int64
	log         zerolog.Logger
	unsubscribe func()
}

func NewAlerter(cfg config.AlertsConfig, logger *zerolog.Logger) (*Alerter, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewAlerterWithSender(bot, cfg.ChatID, logger), nil
}

func NewAlerterWithSender(sender Sender, chatID int64, logger *zerolog.Logger) *Alerter {
	a := &Alerter{sender: sender, chatID: chatID}
	if logger != nil {
		a.log = logger.With().Str("component", "alerts").Logger()
	}
	return a
}

// Watch subscribes the alerter to the bus until Close is called.
func (a *Alerter) Watch(bus *events.Bus) {
	a.unsubscribe = bus.Subscribe(a.handleEvent)
}

func (a *Alerter) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}

func (a *Alerter) handleEvent(event events.Event) {
	if event.Type != events.TypeSyncFailed || event.Entry == nil || !event.Entry.Dead() {
		return
	}
	a.notifyDeadEntry(event.Entry)
}

func (a *Alerter) notifyDeadEntry(entry *models.QueueEntry) {
	lastError := "unknown"
	if entry.LastError != nil {
		lastError = *entry.LastError
	}

	text := fmt.Sprintf(
		"⚠️ Queue entry stuck\n\nID: %d\nType: %s\nRetries: %d\nLast error: %s\n\nRequeue it via POST /api/v1/queue/%d/retry",
		entry.ID, entry.Type, entry.Retries, lastError, entry.ID,
	)

	if _, err := a.sender.Send(tgbotapi.NewMessage(a.chatID, text)); err != nil {
		a.log.Error().Err(err).Int64("entry_id", entry.ID).Msg("Failed to send telegram alert")
	}
}
