package models

import "time"

// Вид позиции каталога: аренда кондиционера или разовая услуга.
const (
	KindRental  = "rental"
	KindService = "service"
)

// Contact — контактные данные клиента. Все поля обязательны,
// формат телефона и почты не проверяется (только наличие).
type Contact struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

// Location — координаты клиента, заполняются только при явном согласии.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Order struct {
	ID             int64       `json:"id"`
	Kind           string      `json:"kind"` // rental | service
	ItemID         int64       `json:"item_id"`
	ItemName       string      `json:"item_name"`
	Date           time.Time   `json:"date"`
	TimeSlot       string      `json:"time_slot"` // "HH:MM" либо метка срока аренды, например "3_months"
	Quantity       int64       `json:"quantity"`
	Duration       string      `json:"duration,omitempty"`
	TotalPrice     float64     `json:"total_price"`
	PaymentStatus  string      `json:"payment_status"`
	Contact        Contact     `json:"contact"`
	Location       *Location   `json:"location,omitempty"`
	Status         OrderStatus `json:"status"`
	TechnicianID   *int64      `json:"technician_id,omitempty"`
	IdempotencyKey string      `json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Version        int64       `json:"version"`
}

// HasSchedule сообщает, выбраны ли дата и слот — без них заказ не создается.
func (o *Order) HasSchedule() bool {
	return !o.Date.IsZero() && o.TimeSlot != ""
}
