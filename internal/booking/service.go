// Package booking реализует жизненный цикл заказа: черновик бронирования,
// оформление, отслеживание по телефону и смену статусов сотрудниками.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"klimatik/internal/database"
	"klimatik/internal/domain"
	"klimatik/internal/events"
	"klimatik/internal/metrics"
	"klimatik/internal/models"
	"klimatik/internal/schedule"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo            domain.OrderRepository
	drafts          domain.DraftRepository
	locator         domain.LocationResolver
	bus             domain.EventPublisher
	syncWorker      domain.SyncWorker
	locationTimeout time.Duration
	now             func() time.Time
	logger          *zerolog.Logger
}

// NewService собирает сервис бронирования. locator, bus и syncWorker
// опциональны: nil отключает соответствующий шаг.
func NewService(
	repo domain.OrderRepository,
	drafts domain.DraftRepository,
	locator domain.LocationResolver,
	bus domain.EventPublisher,
	syncWorker domain.SyncWorker,
	locationTimeout time.Duration,
	logger *zerolog.Logger,
) *Service {
	if locationTimeout <= 0 {
		locationTimeout = 5 * time.Second
	}
	return &Service{
		repo:            repo,
		drafts:          drafts,
		locator:         locator,
		bus:             bus,
		syncWorker:      syncWorker,
		locationTimeout: locationTimeout,
		now:             time.Now,
		logger:          logger,
	}
}

// StartDraft открывает черновик бронирования для позиции каталога.
func (s *Service) StartDraft(ctx context.Context, kind string, itemID, quantity int64) (*models.BookingDraft, error) {
	item, err := s.repo.GetCatalogItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUnknownItem
		}
		return nil, fmt.Errorf("get catalog item: %w", err)
	}
	if !item.IsActive || (kind != "" && item.Kind != kind) {
		return nil, ErrUnknownItem
	}
	if quantity <= 0 {
		quantity = 1
	}

	now := s.now()
	draft := &models.BookingDraft{
		SessionID: uuid.NewString(),
		Kind:      item.Kind,
		ItemID:    item.ID,
		ItemName:  item.Name,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.drafts.SetDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}
	return draft, nil
}

func (s *Service) GetDraft(ctx context.Context, sessionID string) (*models.BookingDraft, error) {
	draft, err := s.drafts.GetDraft(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	if draft == nil {
		return nil, ErrDraftNotFound
	}
	return draft, nil
}

// DraftPatch — частичное обновление черновика. Нулевые поля не трогаются.
type DraftPatch struct {
	Date     *time.Time
	TimeSlot *string
	Duration *string
	Contact  *models.Contact
	Location *models.Location
	Quantity *int64
}

// UpdateDraft применяет патч. Сеттеры тотальны: значение из сетки
// принимается без дополнительных проверок, чужое — отклоняется сразу.
func (s *Service) UpdateDraft(ctx context.Context, sessionID string, patch DraftPatch) (*models.BookingDraft, error) {
	draft, err := s.GetDraft(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if patch.Date != nil {
		if !schedule.InWindow(s.now(), *patch.Date) {
			return nil, ErrDateOutsideWindow
		}
		draft.Date = *patch.Date
	}
	if patch.TimeSlot != nil {
		if err := s.validateSlot(ctx, draft, *patch.TimeSlot); err != nil {
			return nil, err
		}
		draft.TimeSlot = *patch.TimeSlot
	}
	if patch.Duration != nil {
		if err := s.validateDuration(ctx, draft, *patch.Duration); err != nil {
			return nil, err
		}
		draft.Duration = *patch.Duration
	}
	if patch.Contact != nil {
		draft.Contact = *patch.Contact
	}
	if patch.Location != nil {
		draft.Location = patch.Location
	}
	if patch.Quantity != nil && *patch.Quantity > 0 {
		draft.Quantity = *patch.Quantity
	}
	draft.UpdatedAt = s.now()

	if err := s.drafts.SetDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}
	return draft, nil
}

// validateSlot: для услуг слот обязан быть из сетки; для аренды допускается
// и слот установки, и метка срока из каталога.
func (s *Service) validateSlot(ctx context.Context, draft *models.BookingDraft, slot string) error {
	if schedule.IsValidSlot(slot) {
		return nil
	}
	if draft.Kind == models.KindRental {
		return s.validateDuration(ctx, draft, slot)
	}
	return ErrInvalidSlot
}

func (s *Service) validateDuration(ctx context.Context, draft *models.BookingDraft, duration string) error {
	item, err := s.repo.GetCatalogItem(ctx, draft.ItemID)
	if err != nil {
		return fmt.Errorf("get catalog item: %w", err)
	}
	for _, d := range item.Durations {
		if d == duration {
			return nil
		}
	}
	return ErrUnknownDuration
}

// Submit оформляет черновик в заказ. При любой ошибке черновик сохраняется,
// чтобы клиент мог повторить попытку; очищается он только после успеха.
func (s *Service) Submit(ctx context.Context, sessionID, idempotencyKey string) (*models.Order, error) {
	draft, err := s.GetDraft(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	order, err := s.createFromDraft(ctx, draft, idempotencyKey)
	if err != nil {
		return nil, err
	}

	if err := s.drafts.ClearDraft(ctx, sessionID); err != nil {
		// Заказ уже создан; протухший черновик доберет TTL.
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to clear draft after submit")
	}
	return order, nil
}

// CreateOrder — одношаговое оформление без черновика (прямой POST /orders).
func (s *Service) CreateOrder(ctx context.Context, draft *models.BookingDraft, idempotencyKey string) (*models.Order, error) {
	item, err := s.repo.GetCatalogItem(ctx, draft.ItemID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUnknownItem
		}
		return nil, fmt.Errorf("get catalog item: %w", err)
	}
	draft.Kind = item.Kind
	draft.ItemName = item.Name
	return s.createFromDraft(ctx, draft, idempotencyKey)
}

func (s *Service) createFromDraft(ctx context.Context, draft *models.BookingDraft, idempotencyKey string) (*models.Order, error) {
	if !draft.CanProceed() {
		return nil, ErrScheduleIncomplete
	}
	if !draft.ContactComplete() {
		return nil, ErrContactIncomplete
	}

	// Повтор с тем же ключом идемпотентности возвращает прежний заказ.
	if idempotencyKey != "" {
		if existing, err := s.repo.GetOrderByIdempotencyKey(ctx, idempotencyKey); err == nil {
			return existing, nil
		} else if !errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	item, err := s.repo.GetCatalogItem(ctx, draft.ItemID)
	if err != nil {
		return nil, fmt.Errorf("get catalog item: %w", err)
	}

	location := draft.Location
	if location == nil {
		location = s.resolveLocation(ctx, draft.Contact)
	}

	quantity := draft.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	order := &models.Order{
		Kind:           draft.Kind,
		ItemID:         draft.ItemID,
		ItemName:       draft.ItemName,
		Date:           draft.Date,
		TimeSlot:       draft.TimeSlot,
		Quantity:       quantity,
		Duration:       draft.Duration,
		TotalPrice:     item.Price * float64(quantity),
		PaymentStatus:  models.PaymentUnpaid,
		Contact:        draft.Contact,
		Location:       location,
		Status:         models.StatusPending,
		IdempotencyKey: idempotencyKey,
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, database.ErrDuplicateKey) {
			// Гонка двух запросов с одним ключом: отдаем победителя.
			if existing, lookupErr := s.repo.GetOrderByIdempotencyKey(ctx, idempotencyKey); lookupErr == nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	metrics.IncOrderCreated(order.Kind)
	s.publishOrderEvent(events.EventOrderCreated, order, "", "")
	if s.syncWorker != nil {
		if err := s.syncWorker.EnqueueUpsert(ctx, order); err != nil {
			s.logger.Error().Err(err).Int64("order_id", order.ID).Msg("failed to enqueue sheets upsert")
		}
	}

	return order, nil
}

// resolveLocation — явный awaited-шаг с таймаутом и пропуском: отказ или
// просрочка не блокируют оформление.
func (s *Service) resolveLocation(ctx context.Context, contact models.Contact) *models.Location {
	if s.locator == nil {
		return nil
	}

	locCtx, cancel := context.WithTimeout(ctx, s.locationTimeout)
	defer cancel()

	location, err := s.locator.Resolve(locCtx, contact)
	if err != nil {
		s.logger.Info().Err(err).Msg("location unavailable, continuing without it")
		return nil
	}
	return location
}

// TrackingResult — выдача по телефону для страницы отслеживания.
type TrackingResult struct {
	Found     bool                     `json:"found"`
	Orders    []*models.Order          `json:"orders"`
	Indicator models.TrackingIndicator `json:"indicator,omitempty"`
}

// Track возвращает заказы клиента, новые первыми, и индикатор самого
// свежего заказа. Пустая выдача — явное "не найдено", не ошибка.
func (s *Service) Track(ctx context.Context, phone string) (*TrackingResult, error) {
	orders, err := s.repo.GetOrdersByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("get orders by phone: %w", err)
	}
	if len(orders) == 0 {
		return &TrackingResult{Found: false, Orders: []*models.Order{}}, nil
	}
	return &TrackingResult{
		Found:     true,
		Orders:    orders,
		Indicator: models.Indicator(orders[0].Status),
	}, nil
}

// Actor — инициатор смены статуса для журнала и событий.
type Actor struct {
	TechnicianID int64
	Name         string
}

// ChangeStatus переводит заказ в новый статус по единой таблице переходов.
// Запись одна, с оптимистичной версией; списки обновляются только после
// успешного ответа хранилища.
func (s *Service) ChangeStatus(ctx context.Context, orderID int64, to models.OrderStatus, actor Actor) (*models.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// Сотрудник меняет только назначенные ему заказы.
	if actor.TechnicianID != 0 {
		if order.TechnicianID == nil || *order.TechnicianID != actor.TechnicianID {
			return nil, ErrTechnicianMismatch
		}
	}

	if !models.CanTransition(order.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrTransitionDenied, order.Status, to)
	}

	if err := s.repo.UpdateOrderStatusWithVersion(ctx, order.ID, order.Version, to); err != nil {
		return nil, err
	}

	prev := order.Status
	order.Status = to
	order.Version++

	metrics.IncStatusTransition(string(prev), string(to))
	s.publishOrderEvent(events.EventOrderStatusChanged, order, prev, actor.Name)
	if s.syncWorker != nil {
		if err := s.syncWorker.EnqueueStatusUpdate(ctx, order.ID, to); err != nil {
			s.logger.Error().Err(err).Int64("order_id", order.ID).Msg("failed to enqueue sheets status update")
		}
	}

	return order, nil
}

// TechnicianOrders возвращает заказы, назначенные сотруднику.
func (s *Service) TechnicianOrders(ctx context.Context, technicianID int64) ([]*models.Order, error) {
	orders, err := s.repo.GetOrdersByTechnician(ctx, technicianID)
	if err != nil {
		return nil, fmt.Errorf("get technician orders: %w", err)
	}
	return orders, nil
}

// SlotAvailability возвращает сетку слотов с занятостью на дату.
type SlotAvailability struct {
	Slot   string `json:"slot"`
	Booked int    `json:"booked"`
}

func (s *Service) DaySchedule(ctx context.Context, date time.Time) ([]SlotAvailability, error) {
	booked, err := s.repo.GetBookedSlots(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("get booked slots: %w", err)
	}

	slots := schedule.Slots()
	out := make([]SlotAvailability, 0, len(slots))
	for _, slot := range slots {
		out = append(out, SlotAvailability{Slot: slot, Booked: booked[slot]})
	}
	return out, nil
}

func (s *Service) publishOrderEvent(eventType string, order *models.Order, prev models.OrderStatus, changedBy string) {
	if s.bus == nil {
		return
	}
	payload := events.OrderEventPayload{
		OrderID:    order.ID,
		Kind:       order.Kind,
		ItemID:     order.ItemID,
		ItemName:   order.ItemName,
		Date:       order.Date,
		TimeSlot:   order.TimeSlot,
		Phone:      order.Contact.Phone,
		Customer:   order.Contact.Name,
		Status:     order.Status,
		PrevStatus: prev,
		ChangedBy:  changedBy,
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
