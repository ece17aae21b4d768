package bot

import (
	"fmt"
	"strings"

	"klimatik/internal/events"
	"klimatik/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// subscribeEvents подписывает бота на доменные события. Уведомления
// менеджерам идут синхронно из шины, поэтому обработчики быстрые.
func (b *Bot) subscribeEvents() {
	if b.bus == nil {
		return
	}

	b.bus.Subscribe(events.EventOrderCreated, func(event *events.Event) error {
		payload, err := events.DecodeOrderPayload(event)
		if err != nil {
			b.logger.Error().Err(err).Msg("Failed to decode order created event")
			return err
		}
		b.notifyManagersNewOrder(payload)
		return nil
	})

	b.bus.Subscribe(events.EventOrderStatusChanged, func(event *events.Event) error {
		payload, err := events.DecodeOrderPayload(event)
		if err != nil {
			b.logger.Error().Err(err).Msg("Failed to decode status changed event")
			return err
		}
		b.notifyManagersStatusChange(payload)
		return nil
	})

	b.bus.Subscribe(events.EventReviewSubmitted, func(event *events.Event) error {
		payload, err := events.DecodeReviewPayload(event)
		if err != nil {
			b.logger.Error().Err(err).Msg("Failed to decode review event")
			return err
		}
		b.notifyManagersNewReview(payload)
		return nil
	})
}

// notifyManagersNewReview — новый отзыв ждет модерации через API.
func (b *Bot) notifyManagersNewReview(review events.ReviewEventPayload) {
	message := fmt.Sprintf(`📝 Новый отзыв на модерацию:

👤 %s
%s %d/5
💬 %s
🆔 ID отзыва: %d`,
		review.Name,
		strings.Repeat("⭐", review.Rating),
		review.Rating,
		review.Text,
		review.ReviewID)

	for _, managerID := range b.config.Managers {
		b.send(tgbotapi.NewMessage(managerID, message))
	}
}

// notifyManagersNewOrder уведомление менеджеров о новом заказе
func (b *Bot) notifyManagersNewOrder(order events.OrderEventPayload) {
	message := fmt.Sprintf(`🆕 Новый заказ:

🔧 Тип: %s
🏷 Позиция: %s
📅 Дата: %s
🕐 Слот: %s
👤 Клиент: %s
📱 Телефон: %s
🆔 ID заказа: %d`,
		kindLabel(order.Kind),
		order.ItemName,
		order.Date.Format("02.01.2006"),
		order.TimeSlot,
		order.Customer,
		order.Phone,
		order.OrderID)

	for _, managerID := range b.config.Managers {
		msg := tgbotapi.NewMessage(managerID, message)

		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", fmt.Sprintf("approve_%d", order.OrderID)),
				tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", fmt.Sprintf("reject_%d", order.OrderID)),
			),
		)
		msg.ReplyMarkup = &keyboard

		if _, err := b.bot.Send(msg); err != nil {
			b.logger.Error().Err(err).Int64("manager_id", managerID).Msg("Failed to notify manager")
		}
	}
}

// notifyManagersStatusChange уведомление о смене статуса заказа.
// Переходы, сделанные самим менеджером через кнопки, тоже приходят —
// так вся смена видит историю в одном чате.
func (b *Bot) notifyManagersStatusChange(order events.OrderEventPayload) {
	message := fmt.Sprintf("%s Заказ #%d (%s): %s → %s",
		statusEmoji(order.Status),
		order.OrderID,
		order.ItemName,
		statusLabel(order.PrevStatus),
		statusLabel(order.Status))
	if order.ChangedBy != "" {
		message += fmt.Sprintf("\n👤 Изменил: %s", order.ChangedBy)
	}

	for _, managerID := range b.config.Managers {
		b.send(tgbotapi.NewMessage(managerID, message))
	}
}

func kindLabel(kind string) string {
	switch kind {
	case models.KindRental:
		return "Аренда"
	case models.KindService:
		return "Сервис"
	default:
		return kind
	}
}

func statusLabel(s models.OrderStatus) string {
	switch s {
	case models.StatusPending:
		return "новый"
	case models.StatusApproved:
		return "подтвержден"
	case models.StatusScheduled:
		return "запланирован"
	case models.StatusInProgress:
		return "в работе"
	case models.StatusCompleted:
		return "выполнен"
	case models.StatusCancelled:
		return "отменен"
	case models.StatusRejected:
		return "отклонен"
	default:
		return string(s)
	}
}

func statusEmoji(s models.OrderStatus) string {
	switch models.Indicator(s) {
	case models.IndicatorSuccess:
		return "✅"
	case models.IndicatorFailure:
		return "❌"
	default:
		return "⏳"
	}
}
