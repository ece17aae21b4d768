// Package bot — служебный Telegram-бот для менеджеров: уведомления
// о новых заказах, быстрые решения кнопками и выгрузка в Excel.
package bot

import (
	"context"
	"time"

	"klimatik/internal/booking"
	"klimatik/internal/config"
	"klimatik/internal/database"
	"klimatik/internal/events"
	"klimatik/internal/export"
	"klimatik/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramAPI — минимальная поверхность tgbotapi, нужная боту.
// Выделена в интерфейс ради тестов.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

type BotWrapper struct {
	*tgbotapi.BotAPI
}

func NewBotWrapper(bot *tgbotapi.BotAPI) *BotWrapper {
	return &BotWrapper{BotAPI: bot}
}

func (w *BotWrapper) GetSelf() tgbotapi.User {
	return w.Self
}

func (w *BotWrapper) StopReceivingUpdates() {
	w.BotAPI.StopReceivingUpdates()
}

// SheetsMirror перезаливает лист заказов в Google Sheets целиком.
type SheetsMirror interface {
	ReplaceOrdersSheet(ctx context.Context, orders []*models.Order) error
}

type Bot struct {
	bot      TelegramAPI
	config   *config.Config
	db       *database.DB
	booking  *booking.Service
	exporter *export.Exporter
	sheets   SheetsMirror
	bus      *events.EventBus
	logger   *zerolog.Logger
}

func NewBot(
	api TelegramAPI,
	cfg *config.Config,
	db *database.DB,
	bookingSvc *booking.Service,
	exporter *export.Exporter,
	sheets SheetsMirror,
	bus *events.EventBus,
	logger *zerolog.Logger,
) *Bot {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	b := &Bot{
		bot:      api,
		config:   cfg,
		db:       db,
		booking:  bookingSvc,
		exporter: exporter,
		sheets:   sheets,
		bus:      bus,
		logger:   logger,
	}
	b.subscribeEvents()
	return b
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.bot.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.bot.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop останавливает получение обновлений (best-effort).
func (b *Bot) Stop() {
	if b == nil || b.bot == nil {
		return
	}
	b.bot.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	b.withRecovery(func() {
		switch {
		case update.CallbackQuery != nil:
			b.handleCallbackQuery(updateCtx, update)
		case update.Message != nil:
			b.handleMessage(updateCtx, update)
		}
	})
}

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

func (b *Bot) isManager(userID int64) bool {
	for _, id := range b.config.Managers {
		if id == userID {
			return true
		}
	}
	return false
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.bot.Send(c); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send telegram message")
	}
}
