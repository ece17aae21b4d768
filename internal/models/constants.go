package models

const (
	// DefaultDraftTTL время жизни черновика бронирования в Redis
	DefaultDraftTTL = 24 * 60 * 60 // 24 часа в секундах

	// WorkerQueueSize размер локальной очереди воркера синхронизации
	WorkerQueueSize = 1000

	// RateLimitRequests количество запросов в окне на клиента
	RateLimitRequests = 20

	// RateLimitWindow окно ограничения частоты запросов
	RateLimitWindow = 60 // 1 минута в секундах

	// DefaultExportRangeMonths диапазон экспорта по умолчанию
	DefaultExportRangeMonthsBefore = 1
	DefaultExportRangeMonthsAfter  = 2
)

// Статусы оплаты — свободная строка, независимая от статуса заказа.
const (
	PaymentUnpaid   = "unpaid"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)
