package domain

import (
	"context"
	"time"

	"klimatik/internal/models"
)

// OrderRepository — операции хранилища заказов, нужные сервисному слою.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrdersByPhone(ctx context.Context, phone string) ([]*models.Order, error)
	ListOrders(ctx context.Context) ([]*models.Order, error)
	GetOrdersByTechnician(ctx context.Context, technicianID int64) ([]*models.Order, error)
	GetOrdersByDateRange(ctx context.Context, start, end time.Time) ([]*models.Order, error)
	GetBookedSlots(ctx context.Context, date time.Time) (map[string]int, error)
	UpdateOrderStatusWithVersion(ctx context.Context, id, fromVersion int64, status models.OrderStatus) error
	AssignTechnician(ctx context.Context, orderID, technicianID int64) error
	GetCatalogItem(ctx context.Context, id int64) (*models.CatalogItem, error)
}

// DraftRepository хранит черновики бронирований и считает rate limit.
type DraftRepository interface {
	GetDraft(ctx context.Context, sessionID string) (*models.BookingDraft, error)
	SetDraft(ctx context.Context, draft *models.BookingDraft) error
	ClearDraft(ctx context.Context, sessionID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LocationResolver отдает координаты клиента. Вызов ограничивается
// дедлайном: таймаут или отказ — это пропуск шага, не ошибка бронирования.
type LocationResolver interface {
	Resolve(ctx context.Context, contact models.Contact) (*models.Location, error)
}

// EventPublisher — внутрипроцессная шина событий заказа.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// SyncWorker принимает задачи на синхронизацию заказов с внешней таблицей.
type SyncWorker interface {
	EnqueueUpsert(ctx context.Context, order *models.Order) error
	EnqueueStatusUpdate(ctx context.Context, orderID int64, status models.OrderStatus) error
}

// SheetsWriter применяет изменения заказов к Google Sheets.
type SheetsWriter interface {
	UpsertOrder(order *models.Order) error
	UpdateOrderStatus(orderID int64, status string) error
}
