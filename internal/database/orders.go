package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"klimatik/internal/models"
)

const orderColumns = `id, kind, item_id, item_name, date, time_slot, quantity, duration,
              total_price, payment_status, customer_name, phone, email, address,
              latitude, longitude, status, technician_id, idempotency_key,
              created_at, updated_at, version`

// CreateOrder вставляет заказ. Дубликат idempotency_key дает ErrDuplicateKey.
func (db *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `INSERT INTO orders (
                kind, item_id, item_name, date, time_slot, quantity, duration,
                total_price, payment_status, customer_name, phone, email, address,
                latitude, longitude, status, technician_id, idempotency_key,
                created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	var lat, lon any
	if order.Location != nil {
		lat, lon = order.Location.Latitude, order.Location.Longitude
	}
	var techID any
	if order.TechnicianID != nil {
		techID = *order.TechnicianID
	}
	var idemKey any
	if order.IdempotencyKey != "" {
		idemKey = order.IdempotencyKey
	}

	result, err := db.ExecContext(ctx, query,
		order.Kind,
		order.ItemID,
		order.ItemName,
		order.Date.Format(dateLayout),
		order.TimeSlot,
		order.Quantity,
		order.Duration,
		order.TotalPrice,
		order.PaymentStatus,
		order.Contact.Name,
		order.Contact.Phone,
		order.Contact.Email,
		order.Contact.Address,
		lat,
		lon,
		order.Status,
		techID,
		idemKey,
		now,
		now,
		1,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: orders.idempotency_key") {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	order.ID = id
	order.CreatedAt = now
	order.UpdatedAt = now
	order.Version = 1

	return nil
}

func (db *DB) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	return db.queryOrder(ctx, query, id)
}

// GetOrderByIdempotencyKey возвращает ранее созданный заказ по ключу
// идемпотентности либо ErrNotFound.
func (db *DB) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = ?`
	return db.queryOrder(ctx, query, key)
}

// GetOrdersByPhone возвращает заказы клиента, новые первыми.
func (db *DB) GetOrdersByPhone(ctx context.Context, phone string) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE phone = ? ORDER BY created_at DESC, id DESC`
	return db.queryOrders(ctx, query, phone)
}

func (db *DB) ListOrders(ctx context.Context) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC`
	return db.queryOrders(ctx, query)
}

// GetOrdersByTechnician возвращает заказы, назначенные сотруднику.
func (db *DB) GetOrdersByTechnician(ctx context.Context, technicianID int64) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE technician_id = ? ORDER BY date ASC, time_slot ASC`
	return db.queryOrders(ctx, query, technicianID)
}

// GetOrdersByStatus возвращает заказы в указанном статусе, старые первыми.
func (db *DB) GetOrdersByStatus(ctx context.Context, status models.OrderStatus) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = ? ORDER BY created_at ASC`
	return db.queryOrders(ctx, query, status)
}

func (db *DB) GetOrdersByDateRange(ctx context.Context, start, end time.Time) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE date >= ? AND date <= ? ORDER BY date ASC, time_slot ASC`
	return db.queryOrders(ctx, query, start.Format(dateLayout), end.Format(dateLayout))
}

// GetBookedSlots возвращает занятость слотов на дату: слот -> число активных
// заказов. Отмененные и отклоненные заказы слот не держат.
func (db *DB) GetBookedSlots(ctx context.Context, date time.Time) (map[string]int, error) {
	query := `SELECT time_slot, COUNT(*) FROM orders
              WHERE date = ? AND status NOT IN (?, ?)
              GROUP BY time_slot`
	rows, err := db.QueryContext(ctx, query, date.Format(dateLayout), models.StatusCancelled, models.StatusRejected)
	if err != nil {
		return nil, fmt.Errorf("failed to get booked slots: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var slot string
		var count int
		if err := rows.Scan(&slot, &count); err != nil {
			return nil, fmt.Errorf("failed to scan booked slot: %w", err)
		}
		out[slot] = count
	}
	return out, rows.Err()
}

// UpdateOrderStatus меняет статус без контроля версии (служебные сценарии).
func (db *DB) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	query := `UPDATE orders SET status = ?, updated_at = ?, version = version + 1 WHERE id = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return checkAffected(result)
}

// UpdateOrderStatusWithVersion меняет статус только при совпадении версии.
func (db *DB) UpdateOrderStatusWithVersion(ctx context.Context, id, fromVersion int64, status models.OrderStatus) error {
	query := `UPDATE orders SET status = ?, updated_at = ?, version = version + 1 WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// AssignTechnician назначает сотрудника на заказ.
func (db *DB) AssignTechnician(ctx context.Context, orderID, technicianID int64) error {
	query := `UPDATE orders SET technician_id = ?, updated_at = ?, version = version + 1 WHERE id = ?`
	result, err := db.ExecContext(ctx, query, technicianID, time.Now(), orderID)
	if err != nil {
		return fmt.Errorf("failed to assign technician: %w", err)
	}
	return checkAffected(result)
}

// UpdatePaymentStatus меняет статус оплаты, не трогая статус заказа.
func (db *DB) UpdatePaymentStatus(ctx context.Context, id int64, paymentStatus string) error {
	query := `UPDATE orders SET payment_status = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, paymentStatus, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return checkAffected(result)
}

func (db *DB) queryOrder(ctx context.Context, query string, args ...any) (*models.Order, error) {
	row := db.QueryRowContext(ctx, query, args...)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return order, nil
}

func (db *DB) queryOrders(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var dateStr string
	var duration, idemKey sql.NullString
	var lat, lon sql.NullFloat64
	var techID sql.NullInt64

	err := row.Scan(
		&o.ID, &o.Kind, &o.ItemID, &o.ItemName, &dateStr, &o.TimeSlot, &o.Quantity, &duration,
		&o.TotalPrice, &o.PaymentStatus, &o.Contact.Name, &o.Contact.Phone, &o.Contact.Email, &o.Contact.Address,
		&lat, &lon, &o.Status, &techID, &idemKey,
		&o.CreatedAt, &o.UpdatedAt, &o.Version,
	)
	if err != nil {
		return nil, err
	}

	o.Date, err = time.Parse(dateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse order date %q: %w", dateStr, err)
	}
	o.Duration = duration.String
	o.IdempotencyKey = idemKey.String
	if lat.Valid && lon.Valid {
		o.Location = &models.Location{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	if techID.Valid {
		o.TechnicianID = &techID.Int64
	}
	return &o, nil
}

func checkAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
