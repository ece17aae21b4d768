package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"klimatik/internal/database"
	"klimatik/internal/events"
	"klimatik/internal/models"
	"klimatik/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)
	if args.Error(0) == nil && order.ID == 0 {
		order.ID = 1
		order.Version = 1
	}
	return args.Error(0)
}

func (m *mockRepo) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	args := m.Called(ctx, id)
	if o := args.Get(0); o != nil {
		return o.(*models.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepo) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	args := m.Called(ctx, key)
	if o := args.Get(0); o != nil {
		return o.(*models.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepo) GetOrdersByPhone(ctx context.Context, phone string) ([]*models.Order, error) {
	args := m.Called(ctx, phone)
	if o := args.Get(0); o != nil {
		return o.([]*models.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepo) ListOrders(ctx context.Context) ([]*models.Order, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *mockRepo) GetOrdersByTechnician(ctx context.Context, technicianID int64) ([]*models.Order, error) {
	args := m.Called(ctx, technicianID)
	if o := args.Get(0); o != nil {
		return o.([]*models.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepo) GetOrdersByDateRange(ctx context.Context, start, end time.Time) ([]*models.Order, error) {
	args := m.Called(ctx, start, end)
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *mockRepo) GetBookedSlots(ctx context.Context, date time.Time) (map[string]int, error) {
	args := m.Called(ctx, date)
	if o := args.Get(0); o != nil {
		return o.(map[string]int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepo) UpdateOrderStatusWithVersion(ctx context.Context, id, fromVersion int64, status models.OrderStatus) error {
	args := m.Called(ctx, id, fromVersion, status)
	return args.Error(0)
}

func (m *mockRepo) AssignTechnician(ctx context.Context, orderID, technicianID int64) error {
	args := m.Called(ctx, orderID, technicianID)
	return args.Error(0)
}

func (m *mockRepo) GetCatalogItem(ctx context.Context, id int64) (*models.CatalogItem, error) {
	args := m.Called(ctx, id)
	if o := args.Get(0); o != nil {
		return o.(*models.CatalogItem), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSyncWorker struct {
	mock.Mock
}

func (m *mockSyncWorker) EnqueueUpsert(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockSyncWorker) EnqueueStatusUpdate(ctx context.Context, orderID int64, status models.OrderStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

type stubLocator struct {
	loc   *models.Location
	err   error
	delay time.Duration
}

func (s *stubLocator) Resolve(ctx context.Context, contact models.Contact) (*models.Location, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.loc, s.err
}

func rentalItem() *models.CatalogItem {
	return &models.CatalogItem{
		ID: 1, Kind: models.KindRental, Name: "Window AC 1 ton",
		Price: 2500, Durations: []string{"3_months", "6_months"}, IsActive: true,
	}
}

func serviceItem() *models.CatalogItem {
	return &models.CatalogItem{
		ID: 2, Kind: models.KindService, Name: "Gas refill", Price: 1500, IsActive: true,
	}
}

func newTestService(repo *mockRepo, sync *mockSyncWorker, locator *stubLocator) (*Service, *events.EventBus) {
	logger := zerolog.Nop()
	drafts := repository.NewMemoryDraftRepository(time.Hour)
	bus := events.NewEventBus()

	svc := NewService(repo, drafts, nil, bus, nil, 50*time.Millisecond, &logger)
	if sync != nil {
		svc.syncWorker = sync
	}
	if locator != nil {
		svc.locator = locator
	}
	svc.now = func() time.Time { return time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC) }
	return svc, bus
}

func TestStartDraft(t *testing.T) {
	repo := new(mockRepo)
	repo.On("GetCatalogItem", mock.Anything, int64(2)).Return(serviceItem(), nil)
	svc, _ := newTestService(repo, nil, nil)

	draft, err := svc.StartDraft(context.Background(), "", 2, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, draft.SessionID)
	assert.Equal(t, models.KindService, draft.Kind)
	assert.EqualValues(t, 1, draft.Quantity)
	assert.False(t, draft.CanProceed())
}

func TestStartDraftUnknownItem(t *testing.T) {
	repo := new(mockRepo)
	repo.On("GetCatalogItem", mock.Anything, int64(99)).Return(nil, database.ErrNotFound)
	svc, _ := newTestService(repo, nil, nil)

	_, err := svc.StartDraft(context.Background(), "", 99, 1)
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestUpdateDraftValidation(t *testing.T) {
	repo := new(mockRepo)
	repo.On("GetCatalogItem", mock.Anything, int64(2)).Return(serviceItem(), nil)
	svc, _ := newTestService(repo, nil, nil)
	ctx := context.Background()

	draft, err := svc.StartDraft(ctx, "", 2, 1)
	require.NoError(t, err)

	// Дата за пределами окна бронирования.
	farDate := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.UpdateDraft(ctx, draft.SessionID, DraftPatch{Date: &farDate})
	assert.ErrorIs(t, err, ErrDateOutsideWindow)

	// Слот вне сетки.
	badSlot := "08:00"
	_, err = svc.UpdateDraft(ctx, draft.SessionID, DraftPatch{TimeSlot: &badSlot})
	assert.ErrorIs(t, err, ErrInvalidSlot)

	// Валидные дата и слот принимаются.
	date := time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC)
	slot := "10:00"
	updated, err := svc.UpdateDraft(ctx, draft.SessionID, DraftPatch{Date: &date, TimeSlot: &slot})
	require.NoError(t, err)
	assert.True(t, updated.CanProceed())
}

func TestUpdateDraftRentalDuration(t *testing.T) {
	repo := new(mockRepo)
	repo.On("GetCatalogItem", mock.Anything, int64(1)).Return(rentalItem(), nil)
	svc, _ := newTestService(repo, nil, nil)
	ctx := context.Background()

	draft, err := svc.StartDraft(ctx, models.KindRental, 1, 1)
	require.NoError(t, err)

	// Для аренды меткой слота может быть срок из каталога.
	label := "3_months"
	updated, err := svc.UpdateDraft(ctx, draft.SessionID, DraftPatch{TimeSlot: &label})
	require.NoError(t, err)
	assert.Equal(t, "3_months", updated.TimeSlot)

	unknown := "99_years"
	_, err = svc.UpdateDraft(ctx, draft.SessionID, DraftPatch{TimeSlot: &unknown})
	assert.ErrorIs(t, err, ErrUnknownDuration)
}

func TestCanProceedTruthTable(t *testing.T) {
	cases := []struct {
		date bool
		slot bool
		want bool
	}{
		{false, false, false},
		{true, false, false},
		{false, true, false},
		{true, true, true},
	}
	for _, tc := range cases {
		var d models.BookingDraft
		if tc.date {
			d.Date = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
		}
		if tc.slot {
			d.TimeSlot = "10:00"
		}
		assert.Equal(t, tc.want, d.CanProceed(), "date=%v slot=%v", tc.date, tc.slot)
	}
}

func completeDraft(t *testing.T, svc *Service, itemID int64) *models.BookingDraft {
	t.Helper()
	ctx := context.Background()
	draft, err := svc.StartDraft(ctx, "", itemID, 1)
	require.NoError(t, err)

	date := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	slot := "10:00"
	contact := models.Contact{Name: "A", Phone: "9999999999", Email: "a@a.com", Address: "X"}
	draft, err = svc.UpdateDraft(ctx, draft.SessionID, DraftPatch{Date: &date, TimeSlot: &slot, Contact: &contact})
	require.NoError(t, err)
	return draft
}

func TestSubmitIncompleteSchedule(t *testing.T) {
	repo := new(mockRepo)
	repo.On("GetCatalogItem", mock.Anything, int64(2)).Return(serviceItem(), nil)
	svc, _ := newTestService(repo, nil, nil)
	ctx := context.Background()

	draft, err := svc.StartDraft(ctx, "", 2, 1)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, draft.SessionID, "")
	assert.ErrorIs(t, err, ErrScheduleIncomplete)

	// Черновик сохранен для повторной попытки.
	kept, err := svc.GetDraft(ctx, draft.SessionID)
	require.NoError(t, err)
	assert.Equal(t, draft.SessionID, kept.SessionID)

	repo.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestSubmitCreatesOrderAndClearsDraft(t *testing.T) {
	repo := new(mockRepo)
	repo.On("GetCatalogItem", mock.Anything, int64(2)).Return(serviceItem(), nil)
	repo.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)
	sync := new(mockSyncWorker)
	sync.On("EnqueueUpsert", mock.Anything, mock.Anything).Return(nil)

	svc, bus := newTestService(repo, sync, nil)
	ctx := context.Background()

	var created events.OrderEventPayload
	bus.Subscribe(events.EventOrderCreated, func(e *events.Event) error {
		p, err := events.DecodeOrderPayload(e)
		require.NoError(t, err)
		created = p
		return nil
	})

	draft := completeDraft(t, svc, 2)
	order, err := svc.Submit(ctx, draft.SessionID, "")
	require.NoError(t, err)

	// Тело заказа: ровно выбранные поля, статус pending, цена из каталога.
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), order.Date)
	assert.Equal(t, "10:00", order.TimeSlot)
	assert.Equal(t, models.Contact{Name: "A", Phone: "9999999999", Email: "a@a.com", Address: "X"}, order.Contact)
	assert.Nil(t, order.Location)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.InDelta(t, 1500, order.TotalPrice, 1e-9)

	// Черновик очищен только после успеха.
	_, err = svc.GetDraft(ctx, draft.SessionID)
	assert.ErrorIs(t, err, ErrDraftNotFound)

	assert.EqualValues(t, order.ID, created.OrderID)
	sync.AssertCalled(t, "EnqueueUpsert", mock.Anything, mock.Anything)
	repo.AssertNumberOfCalls(t, "CreateOrder", 1)
}

func TestSubmitFailurePreservesDraft(t *testing.T) {
	repo := new(mockRepo)
	repo.On("GetCatalogItem", mock.Anything, int64(2)).Return(serviceItem(), nil)
	repo.On("CreateOrder", mock.Anything, mock.Anything).Return(errors.New("db down"))
	svc, _ := newTestService(repo, nil, nil)
	ctx := context.Background()

	draft := completeDraft(t, svc, 2)
	_, err := svc.Submit(ctx, draft.SessionID, "")
	require.Error(t, err)

	// Состояние цело, клиент может повторить вручную; авторетраев нет.
	kept, err := svc.GetDraft(ctx, draft.SessionID)
	require.NoError(t, err)
	assert.True(t, kept.CanProceed())
	repo.AssertNumberOfCalls(t, "CreateOrder", 1)
}

func TestSubmitIdempotencyKeyReturnsExisting(t *testing.T) {
	existing := &models.Order{ID: 42, Status: models.StatusPending, IdempotencyKey: "idem-1"}
	repo := new(mockRepo)
	repo.On("GetCatalogItem", mock.Anything, int64(2)).Return(serviceItem(), nil)
	repo.On("GetOrderByIdempotencyKey", mock.Anything, "idem-1").Return(existing, nil)
	svc, _ := newTestService(repo, nil, nil)

	draft := completeDraft(t, svc, 2)
	order, err := svc.Submit(context.Background(), draft.SessionID, "idem-1")
	require.NoError(t, err)
	assert.EqualValues(t, 42, order.ID)
	repo.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestSubmitLocationTimeoutSkips(t *testing.T) {
	repo := new(mockRepo)
	repo.On("GetCatalogItem", mock.Anything, int64(2)).Return(serviceItem(), nil)
	repo.On("GetOrderByIdempotencyKey", mock.Anything, mock.Anything).Return(nil, database.ErrNotFound)
	repo.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)

	// Резолвер заведомо не укладывается в таймаут сервиса (50ms).
	locator := &stubLocator{loc: &models.Location{Latitude: 1, Longitude: 2}, delay: time.Second}
	svc, _ := newTestService(repo, nil, locator)

	draft := completeDraft(t, svc, 2)
	start := time.Now()
	order, err := svc.Submit(context.Background(), draft.SessionID, "idem-loc")
	require.NoError(t, err)
	assert.Nil(t, order.Location)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSubmitLocationResolved(t *testing.T) {
	repo := new(mockRepo)
	repo.On("GetCatalogItem", mock.Anything, int64(2)).Return(serviceItem(), nil)
	repo.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)

	locator := &stubLocator{loc: &models.Location{Latitude: 55.75, Longitude: 37.62}}
	svc, _ := newTestService(repo, nil, locator)

	draft := completeDraft(t, svc, 2)
	order, err := svc.Submit(context.Background(), draft.SessionID, "")
	require.NoError(t, err)
	require.NotNil(t, order.Location)
	assert.InDelta(t, 55.75, order.Location.Latitude, 1e-9)
}

func TestTrackNotFound(t *testing.T) {
	repo := new(mockRepo)
	repo.On("GetOrdersByPhone", mock.Anything, "9876543210").Return([]*models.Order{}, nil)
	svc, _ := newTestService(repo, nil, nil)

	result, err := svc.Track(context.Background(), "9876543210")
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Empty(t, result.Orders)

	// Один запрос на одно действие пользователя.
	repo.AssertNumberOfCalls(t, "GetOrdersByPhone", 1)
}

func TestTrackIndicator(t *testing.T) {
	cases := map[models.OrderStatus]models.TrackingIndicator{
		models.StatusApproved: models.IndicatorSuccess,
		models.StatusPending:  models.IndicatorWaiting,
		models.StatusRejected: models.IndicatorFailure,
	}
	for status, want := range cases {
		repo := new(mockRepo)
		repo.On("GetOrdersByPhone", mock.Anything, "9876543210").
			Return([]*models.Order{{ID: 1, Status: status}}, nil)
		svc, _ := newTestService(repo, nil, nil)

		result, err := svc.Track(context.Background(), "9876543210")
		require.NoError(t, err)
		assert.True(t, result.Found)
		assert.Equal(t, want, result.Indicator, status)
	}
}

func TestChangeStatus(t *testing.T) {
	techID := int64(5)
	order := &models.Order{
		ID: 9, Status: models.StatusInProgress, Version: 3,
		TechnicianID: &techID,
		Contact:      models.Contact{Phone: "9999999999", Name: "A"},
	}
	repo := new(mockRepo)
	repo.On("GetOrder", mock.Anything, int64(9)).Return(order, nil)
	repo.On("UpdateOrderStatusWithVersion", mock.Anything, int64(9), int64(3), models.StatusCompleted).Return(nil)
	sync := new(mockSyncWorker)
	sync.On("EnqueueStatusUpdate", mock.Anything, int64(9), models.StatusCompleted).Return(nil)

	svc, bus := newTestService(repo, sync, nil)

	var changed events.OrderEventPayload
	bus.Subscribe(events.EventOrderStatusChanged, func(e *events.Event) error {
		changed, _ = events.DecodeOrderPayload(e)
		return nil
	})

	updated, err := svc.ChangeStatus(context.Background(), 9, models.StatusCompleted, Actor{TechnicianID: 5, Name: "Ivan"})
	require.NoError(t, err)

	// Ровно одна запись в хранилище; поля кроме статуса и версии не тронуты.
	repo.AssertNumberOfCalls(t, "UpdateOrderStatusWithVersion", 1)
	assert.Equal(t, models.StatusCompleted, updated.Status)
	assert.EqualValues(t, 4, updated.Version)
	assert.Equal(t, "9999999999", updated.Contact.Phone)

	assert.Equal(t, models.StatusInProgress, changed.PrevStatus)
	assert.Equal(t, "Ivan", changed.ChangedBy)
}

func TestChangeStatusDeniedTransition(t *testing.T) {
	order := &models.Order{ID: 9, Status: models.StatusCompleted, Version: 1}
	repo := new(mockRepo)
	repo.On("GetOrder", mock.Anything, int64(9)).Return(order, nil)
	svc, _ := newTestService(repo, nil, nil)

	_, err := svc.ChangeStatus(context.Background(), 9, models.StatusPending, Actor{})
	assert.ErrorIs(t, err, ErrTransitionDenied)
	repo.AssertNotCalled(t, "UpdateOrderStatusWithVersion", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestChangeStatusTechnicianMismatch(t *testing.T) {
	otherTech := int64(7)
	order := &models.Order{ID: 9, Status: models.StatusApproved, Version: 1, TechnicianID: &otherTech}
	repo := new(mockRepo)
	repo.On("GetOrder", mock.Anything, int64(9)).Return(order, nil)
	svc, _ := newTestService(repo, nil, nil)

	_, err := svc.ChangeStatus(context.Background(), 9, models.StatusInProgress, Actor{TechnicianID: 5})
	assert.ErrorIs(t, err, ErrTechnicianMismatch)
}

func TestChangeStatusVersionConflictSurfaces(t *testing.T) {
	order := &models.Order{ID: 9, Status: models.StatusPending, Version: 1}
	repo := new(mockRepo)
	repo.On("GetOrder", mock.Anything, int64(9)).Return(order, nil)
	repo.On("UpdateOrderStatusWithVersion", mock.Anything, int64(9), int64(1), models.StatusApproved).
		Return(database.ErrVersionConflict)
	svc, _ := newTestService(repo, nil, nil)

	_, err := svc.ChangeStatus(context.Background(), 9, models.StatusApproved, Actor{})
	assert.ErrorIs(t, err, database.ErrVersionConflict)
}

func TestDaySchedule(t *testing.T) {
	repo := new(mockRepo)
	date := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	repo.On("GetBookedSlots", mock.Anything, date).Return(map[string]int{"10:00": 2}, nil)
	svc, _ := newTestService(repo, nil, nil)

	slots, err := svc.DaySchedule(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, slots, 24)
	assert.Equal(t, "09:00", slots[0].Slot)
	assert.Equal(t, 0, slots[0].Booked)
	assert.Equal(t, 2, slots[2].Booked) // 10:00
}
