// Package schedule генерирует сетку получасовых слотов рабочего дня
// и окно календаря для бронирования. Обе функции чистые и детерминированные.
package schedule

import (
	"fmt"
	"time"
)

const (
	// OpenHour / CloseHour — границы рабочего дня сервиса.
	OpenHour  = 9
	CloseHour = 20

	// SlotsPerHour получасовая сетка
	SlotsPerHour = 2

	// WindowDays глубина окна бронирования в днях, включая сегодня
	WindowDays = 14
)

// Slots возвращает упорядоченный список слотов "HH:MM": каждый час с 09 по 20
// дает слоты :00 и :30. Канонический формат один; конвертация в другие
// представления происходит на границе API.
func Slots() []string {
	out := make([]string, 0, (CloseHour-OpenHour+1)*SlotsPerHour)
	for h := OpenHour; h <= CloseHour; h++ {
		out = append(out, fmt.Sprintf("%02d:00", h), fmt.Sprintf("%02d:30", h))
	}
	return out
}

// IsValidSlot проверяет принадлежность строки сетке слотов.
func IsValidSlot(slot string) bool {
	for _, s := range Slots() {
		if s == slot {
			return true
		}
	}
	return false
}

// Window возвращает WindowDays последовательных дат начиная с сегодняшней,
// нормализованных к полуночи в зоне now.
func Window(now time.Time) []time.Time {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	out := make([]time.Time, 0, WindowDays)
	for i := 0; i < WindowDays; i++ {
		out = append(out, start.AddDate(0, 0, i))
	}
	return out
}

// InWindow сообщает, попадает ли дата в окно бронирования от now.
func InWindow(now, date time.Time) bool {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, WindowDays)
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, now.Location())
	return !d.Before(start) && d.Before(end)
}
