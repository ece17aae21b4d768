package models

import (
	"fmt"
	"strings"
)

// OrderStatus — статус заказа в едином жизненном цикле.
// Храним в нижнем регистре, на границе API принимаем любой регистр.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusApproved   OrderStatus = "approved"
	StatusScheduled  OrderStatus = "scheduled"
	StatusInProgress OrderStatus = "in_progress"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRejected   OrderStatus = "rejected"
)

// AllStatuses перечисляет допустимые статусы в порядке жизненного цикла.
var AllStatuses = []OrderStatus{
	StatusPending,
	StatusApproved,
	StatusScheduled,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusRejected,
}

// transitions — единая таблица переходов статусов.
// Завершенные, отклоненные и отмененные заказы терминальны.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:   {StatusScheduled, StatusInProgress, StatusCancelled},
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// ParseStatus нормализует строку статуса ("In Progress" -> in_progress).
func ParseStatus(raw string) (OrderStatus, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "_")
	for _, known := range AllStatuses {
		if OrderStatus(s) == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown order status: %q", raw)
}

// CanTransition сообщает, разрешен ли переход from -> to.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// NextStatuses возвращает допустимые переходы из текущего статуса.
func NextStatuses(from OrderStatus) []OrderStatus {
	out := make([]OrderStatus, len(transitions[from]))
	copy(out, transitions[from])
	return out
}

// IsTerminal - true для статусов без исходящих переходов.
func IsTerminal(s OrderStatus) bool {
	return len(transitions[s]) == 0
}

// TrackingIndicator — агрегированный индикатор для страницы отслеживания.
type TrackingIndicator string

const (
	IndicatorSuccess TrackingIndicator = "success"
	IndicatorWaiting TrackingIndicator = "waiting"
	IndicatorFailure TrackingIndicator = "failure"
)

// Indicator сводит полный набор статусов к трем индикаторам отслеживания.
// Отображение тотально: незнакомый статус считается ожиданием.
func Indicator(s OrderStatus) TrackingIndicator {
	switch s {
	case StatusApproved, StatusCompleted:
		return IndicatorSuccess
	case StatusRejected, StatusCancelled:
		return IndicatorFailure
	default:
		return IndicatorWaiting
	}
}
