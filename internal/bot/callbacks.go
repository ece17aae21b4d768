package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"klimatik/internal/booking"
	"klimatik/internal/database"
	"klimatik/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, update tgbotapi.Update) {
	callback := update.CallbackQuery
	data := callback.Data
	userID := callback.From.ID

	// Отвечаем на callback сразу, чтобы убрать "часики"
	callbackConfig := tgbotapi.NewCallback(callback.ID, "")
	if _, err := b.bot.Request(callbackConfig); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to answer callback query")
	}

	if b.isBlacklisted(userID) || !b.isManager(userID) {
		return
	}

	switch {
	case strings.HasPrefix(data, "approve_"):
		orderID, _ := strconv.ParseInt(strings.TrimPrefix(data, "approve_"), 10, 64)
		b.decideOrder(ctx, callback, orderID, models.StatusApproved)

	case strings.HasPrefix(data, "reject_"):
		orderID, _ := strconv.ParseInt(strings.TrimPrefix(data, "reject_"), 10, 64)
		b.decideOrder(ctx, callback, orderID, models.StatusRejected)
	}
}

// decideOrder применяет решение менеджера по кнопке. Конфликты версий и
// запрещенные переходы показываем как есть — заказ мог уже изменить
// другой менеджер или администратор через API.
func (b *Bot) decideOrder(ctx context.Context, callback *tgbotapi.CallbackQuery, orderID int64, to models.OrderStatus) {
	chatID := callback.Message.Chat.ID

	actorName := callback.From.UserName
	if actorName == "" {
		actorName = fmt.Sprintf("manager:%d", callback.From.ID)
	}

	order, err := b.booking.ChangeStatus(ctx, orderID, to, booking.Actor{Name: actorName})
	if err != nil {
		b.logger.Error().Err(err).
			Int64("order_id", orderID).
			Str("status", string(to)).
			Msg("Failed to change order status from bot")
		b.send(tgbotapi.NewMessage(chatID, decisionErrorText(orderID, err)))
		return
	}

	// Убираем кнопки у исходного уведомления, решение принято
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, callback.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := b.bot.Request(edit); err != nil {
		b.logger.Debug().Err(err).Msg("Failed to clear inline keyboard")
	}

	b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("%s Заказ #%d: %s (@%s)",
		statusEmoji(order.Status), order.ID, statusLabel(order.Status), actorName)))
}

func decisionErrorText(orderID int64, err error) string {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return fmt.Sprintf("Заказ #%d не найден", orderID)
	case errors.Is(err, booking.ErrTransitionDenied), errors.Is(err, database.ErrVersionConflict):
		return fmt.Sprintf("Заказ #%d уже обработан, обновите список: /pending", orderID)
	default:
		return fmt.Sprintf("Не удалось обновить заказ #%d, попробуйте позже", orderID)
	}
}
