package booking

import "errors"

var (
	// ErrScheduleIncomplete — не выбраны дата и/или слот. Мягкая ошибка
	// валидации: черновик сохраняется, клиент может продолжить.
	ErrScheduleIncomplete = errors.New("date and time slot must be selected")

	// ErrContactIncomplete — не заполнено какое-то из контактных полей.
	ErrContactIncomplete = errors.New("name, phone, email and address are required")

	ErrInvalidSlot        = errors.New("time slot is not in the schedule grid")
	ErrDateOutsideWindow  = errors.New("date is outside the booking window")
	ErrUnknownItem        = errors.New("unknown catalog item")
	ErrUnknownDuration    = errors.New("duration is not offered for this rental")
	ErrDraftNotFound      = errors.New("booking draft not found")
	ErrTransitionDenied   = errors.New("status transition not allowed")
	ErrTechnicianMismatch = errors.New("order is not assigned to this technician")
)
