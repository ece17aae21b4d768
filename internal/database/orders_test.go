package database

import (
	"context"
	"os"
	"testing"
	"time"

	"klimatik/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(os.Stdout)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testOrder() *models.Order {
	return &models.Order{
		Kind:          models.KindService,
		ItemID:        2,
		ItemName:      "Gas refill",
		Date:          time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		TimeSlot:      "10:00",
		Quantity:      1,
		TotalPrice:    1500,
		PaymentStatus: models.PaymentUnpaid,
		Contact: models.Contact{
			Name:    "A",
			Phone:   "9999999999",
			Email:   "a@a.com",
			Address: "X",
		},
		Status: models.StatusPending,
	}
}

func TestCreateAndGetOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	order := testOrder()
	order.Location = &models.Location{Latitude: 55.75, Longitude: 37.62}
	require.NoError(t, db.CreateOrder(ctx, order))
	require.NotZero(t, order.ID)
	assert.EqualValues(t, 1, order.Version)

	got, err := db.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ItemName, got.ItemName)
	assert.Equal(t, "10:00", got.TimeSlot)
	assert.Equal(t, order.Date, got.Date)
	assert.Equal(t, order.Contact, got.Contact)
	require.NotNil(t, got.Location)
	assert.InDelta(t, 55.75, got.Location.Latitude, 1e-9)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.TechnicianID)
}

func TestGetOrderNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetOrder(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIdempotencyKeyConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := testOrder()
	first.IdempotencyKey = "key-1"
	require.NoError(t, db.CreateOrder(ctx, first))

	second := testOrder()
	second.IdempotencyKey = "key-1"
	err := db.CreateOrder(ctx, second)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	got, err := db.GetOrderByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestGetOrdersByPhone(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		o := testOrder()
		require.NoError(t, db.CreateOrder(ctx, o))
	}
	other := testOrder()
	other.Contact.Phone = "1111111111"
	require.NoError(t, db.CreateOrder(ctx, other))

	orders, err := db.GetOrdersByPhone(ctx, "9999999999")
	require.NoError(t, err)
	require.Len(t, orders, 3)
	// Новые первыми.
	assert.GreaterOrEqual(t, orders[0].ID, orders[1].ID)

	none, err := db.GetOrdersByPhone(ctx, "0000000000")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateOrderStatusWithVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	order := testOrder()
	require.NoError(t, db.CreateOrder(ctx, order))

	require.NoError(t, db.UpdateOrderStatusWithVersion(ctx, order.ID, 1, models.StatusApproved))

	got, err := db.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.EqualValues(t, 2, got.Version)

	// Повтор со старой версией конфликтует.
	err = db.UpdateOrderStatusWithVersion(ctx, order.ID, 1, models.StatusCompleted)
	assert.ErrorIs(t, err, ErrVersionConflict)

	// Остальные поля не тронуты.
	assert.Equal(t, order.Contact, got.Contact)
	assert.Equal(t, order.TimeSlot, got.TimeSlot)
}

func TestAssignTechnicianAndListByTechnician(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tech := &models.Technician{Login: "ivan", PasswordHash: "x", Name: "Ivan", IsActive: true}
	require.NoError(t, db.CreateTechnician(ctx, tech))

	order := testOrder()
	require.NoError(t, db.CreateOrder(ctx, order))
	require.NoError(t, db.AssignTechnician(ctx, order.ID, tech.ID))

	orders, err := db.GetOrdersByTechnician(ctx, tech.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.NotNil(t, orders[0].TechnicianID)
	assert.Equal(t, tech.ID, *orders[0].TechnicianID)
}

func TestGetBookedSlots(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	date := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	a := testOrder()
	require.NoError(t, db.CreateOrder(ctx, a))

	b := testOrder()
	b.TimeSlot = "11:30"
	require.NoError(t, db.CreateOrder(ctx, b))

	// Отмененный заказ слот не держит.
	c := testOrder()
	c.TimeSlot = "12:00"
	c.Status = models.StatusCancelled
	require.NoError(t, db.CreateOrder(ctx, c))

	booked, err := db.GetBookedSlots(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, 1, booked["10:00"])
	assert.Equal(t, 1, booked["11:30"])
	assert.NotContains(t, booked, "12:00")
}

func TestGetOrdersByDateRange(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	inRange := testOrder()
	require.NoError(t, db.CreateOrder(ctx, inRange))

	outOfRange := testOrder()
	outOfRange.Date = time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.CreateOrder(ctx, outOfRange))

	orders, err := db.GetOrdersByDateRange(ctx,
		time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, inRange.ID, orders[0].ID)
}

func TestUpdatePaymentStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	order := testOrder()
	require.NoError(t, db.CreateOrder(ctx, order))
	require.NoError(t, db.UpdatePaymentStatus(ctx, order.ID, models.PaymentPaid))

	got, err := db.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	// Статус заказа не затронут.
	assert.Equal(t, models.StatusPending, got.Status)
}
