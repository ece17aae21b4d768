package models

import "time"

// BookingDraft — черновик бронирования. Живет в Redis (с failover в память)
// под ключом сессии, пока клиент выбирает дату, слот и заполняет контакты.
type BookingDraft struct {
	SessionID    string    `json:"session_id"`
	Kind         string    `json:"kind"`
	ItemID       int64     `json:"item_id"`
	ItemName     string    `json:"item_name"`
	Date         time.Time `json:"date"`
	TimeSlot     string    `json:"time_slot"`
	Duration     string    `json:"duration,omitempty"`
	Quantity     int64     `json:"quantity"`
	Contact      Contact   `json:"contact"`
	Location     *Location `json:"location,omitempty"`
	LocationNote string    `json:"location_note,omitempty"` // нефатальная причина отсутствия координат
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CanProceed - true, только когда выбраны и дата, и слот.
// Ложь — мягкая ошибка валидации, а не исключение.
func (d *BookingDraft) CanProceed() bool {
	return !d.Date.IsZero() && d.TimeSlot != ""
}

// ContactComplete проверяет наличие всех обязательных контактных полей.
func (d *BookingDraft) ContactComplete() bool {
	c := d.Contact
	return c.Name != "" && c.Phone != "" && c.Email != "" && c.Address != ""
}
