package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"klimatik/internal/google"
	"klimatik/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = `Команды:
/orders — последние заказы
/pending — заказы, ожидающие решения
/export — выгрузка заказов в Excel
/sync — пересобрать таблицу заказов в Google Sheets
/help — эта справка`

func (b *Bot) handleMessage(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID
	text := update.Message.Text

	b.logger.Debug().
		Int64("user_id", userID).
		Str("username", update.Message.From.UserName).
		Str("text", text).
		Msg("Handling message")

	if b.isBlacklisted(userID) {
		return
	}

	if !b.isManager(userID) {
		b.send(tgbotapi.NewMessage(chatID, "Бот доступен только менеджерам. Оформить заказ можно на сайте."))
		return
	}

	switch {
	case text == "/start" || text == "/help":
		b.send(tgbotapi.NewMessage(chatID, helpText))

	case text == "/orders":
		b.sendRecentOrders(ctx, chatID)

	case text == "/pending":
		b.sendPendingOrders(ctx, chatID)

	case strings.HasPrefix(text, "/export"):
		b.handleExport(ctx, chatID)

	case text == "/sync":
		b.handleSync(ctx, chatID)
	}
}

// handleSync перезаливает лист Orders целиком. Инкрементальная
// синхронизация идет через воркер, команда нужна после ручных правок
// таблицы или смены spreadsheet_id.
func (b *Bot) handleSync(ctx context.Context, chatID int64) {
	if b.sheets == nil {
		msg := "Google Sheets не настроен"
		if email, err := google.ServiceAccountEmail(b.config.Google.CredentialsFile); err == nil {
			msg += fmt.Sprintf("\nВыдайте сервисному аккаунту %s доступ к таблице и задайте orders_spreadsheet_id", email)
		}
		b.send(tgbotapi.NewMessage(chatID, msg))
		return
	}

	b.send(tgbotapi.NewMessage(chatID, "Синхронизирую заказы с Google Sheets..."))

	orders, err := b.db.ListOrders(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to list orders for sheets sync")
		b.send(tgbotapi.NewMessage(chatID, "Не удалось получить заказы"))
		return
	}

	if err := b.sheets.ReplaceOrdersSheet(ctx, orders); err != nil {
		b.logger.Error().Err(err).Msg("Failed to rebuild orders sheet")
		b.send(tgbotapi.NewMessage(chatID, "Ошибка синхронизации, подробности в логах"))
		return
	}

	b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Готово, в таблице %d заказов ✅", len(orders))))
}

// sendRecentOrders показывает последние заказы, свежие сверху.
func (b *Bot) sendRecentOrders(ctx context.Context, chatID int64) {
	orders, err := b.db.ListOrders(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to list orders")
		b.send(tgbotapi.NewMessage(chatID, "Не удалось получить заказы"))
		return
	}
	if len(orders) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Заказов пока нет"))
		return
	}

	const limit = 10
	if len(orders) > limit {
		orders = orders[:limit]
	}

	var sb strings.Builder
	sb.WriteString("📋 Последние заказы:\n\n")
	for _, order := range orders {
		sb.WriteString(formatOrderLine(order))
		sb.WriteString("\n")
	}
	b.send(tgbotapi.NewMessage(chatID, sb.String()))
}

func (b *Bot) sendPendingOrders(ctx context.Context, chatID int64) {
	orders, err := b.db.GetOrdersByStatus(ctx, models.StatusPending)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to get pending orders")
		b.send(tgbotapi.NewMessage(chatID, "Не удалось получить заказы"))
		return
	}
	if len(orders) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Нет заказов, ожидающих решения ✨"))
		return
	}

	for _, order := range orders {
		msg := tgbotapi.NewMessage(chatID, formatOrderCard(order))
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", fmt.Sprintf("approve_%d", order.ID)),
				tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", fmt.Sprintf("reject_%d", order.ID)),
			),
		)
		msg.ReplyMarkup = &keyboard
		b.send(msg)
	}
}

// handleExport выгружает заказы за месяц назад и два вперед — тот же
// диапазон, что у HTTP-выгрузки по умолчанию.
func (b *Bot) handleExport(ctx context.Context, chatID int64) {
	if b.exporter == nil {
		b.send(tgbotapi.NewMessage(chatID, "Выгрузка не настроена"))
		return
	}

	b.send(tgbotapi.NewMessage(chatID, "Готовлю выгрузку..."))

	now := time.Now()
	startDate := now.AddDate(0, -models.DefaultExportRangeMonthsBefore, 0)
	endDate := now.AddDate(0, models.DefaultExportRangeMonthsAfter, 0)

	filePath, err := b.exporter.OrdersToExcel(ctx, startDate, endDate)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to export orders")
		b.send(tgbotapi.NewMessage(chatID, "Ошибка при создании выгрузки"))
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(filePath))
	doc.Caption = fmt.Sprintf("Заказы с %s по %s",
		startDate.Format("02.01.2006"), endDate.Format("02.01.2006"))
	b.send(doc)
}

func (b *Bot) isBlacklisted(userID int64) bool {
	for _, id := range b.config.Blacklist {
		if id == userID {
			return true
		}
	}
	return false
}

func formatOrderLine(order *models.Order) string {
	return fmt.Sprintf("%s #%d %s — %s, %s %s",
		statusEmoji(order.Status),
		order.ID,
		kindLabel(order.Kind),
		order.ItemName,
		order.Date.Format("02.01"),
		order.TimeSlot)
}

func formatOrderCard(order *models.Order) string {
	return fmt.Sprintf(`🔧 Тип: %s
🏷 Позиция: %s
📅 Дата: %s
🕐 Слот: %s
💰 Сумма: %.2f
👤 Клиент: %s
📱 Телефон: %s
📍 Адрес: %s
🆔 ID заказа: %d`,
		kindLabel(order.Kind),
		order.ItemName,
		order.Date.Format("02.01.2006"),
		order.TimeSlot,
		order.TotalPrice,
		order.Contact.Name,
		order.Contact.Phone,
		order.Contact.Address,
		order.ID)
}
