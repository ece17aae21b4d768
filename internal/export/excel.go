// Package export выгружает заказы в Excel: плоский список за период
// и сетка загрузки слотов по датам.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"klimatik/internal/database"
	"klimatik/internal/models"
	"klimatik/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	ordersSheetName   = "Заказы"
	scheduleSheetName = "Загрузка"

	statusIconSuccess = "✅"
	statusIconPending = "⏳"
	statusIconError   = "❌"
)

type Exporter struct {
	db     *database.DB
	path   string
	logger *zerolog.Logger
}

func NewExporter(db *database.DB, path string, logger *zerolog.Logger) *Exporter {
	return &Exporter{db: db, path: path, logger: logger}
}

// OrdersToExcel создает файл со списком заказов за период и листом
// загрузки слотов. Возвращает путь к файлу.
func (e *Exporter) OrdersToExcel(ctx context.Context, startDate, endDate time.Time) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	orders, err := e.db.GetOrdersByDateRange(ctx, startDate, endDate)
	if err != nil {
		return "", fmt.Errorf("get orders: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeOrdersSheet(f, orders, startDate, endDate); err != nil {
		return "", err
	}
	if err := e.writeScheduleSheet(ctx, f, startDate, endDate); err != nil {
		return "", err
	}

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("orders_%s_to_%s.xlsx",
		startDate.Format("2006-01-02"),
		endDate.Format("2006-01-02"))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("orders", len(orders)).Msg("excel export created")
	return filePath, nil
}

func (e *Exporter) writeOrdersSheet(f *excelize.File, orders []*models.Order, startDate, endDate time.Time) error {
	index, err := f.NewSheet(ordersSheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(ordersSheetName, "A1", fmt.Sprintf("Период: %s - %s",
		startDate.Format("02.01.2006"), endDate.Format("02.01.2006")))
	_ = f.MergeCell(ordersSheetName, "A1", "K1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(ordersSheetName, "A1", "A1", titleStyle)

	headers := []string{
		"ID", "Тип", "Услуга", "Дата", "Слот", "Кол-во",
		"Сумма", "Статус", "Клиент", "Телефон", "Адрес",
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(ordersSheetName, cell, header)
		_ = f.SetCellStyle(ordersSheetName, cell, cell, headerStyle)
	}

	for i, order := range orders {
		row := i + 3
		values := []interface{}{
			order.ID,
			kindLabel(order.Kind),
			order.ItemName,
			order.Date.Format("02.01.2006"),
			order.TimeSlot,
			order.Quantity,
			order.TotalPrice,
			fmt.Sprintf("%s %s", statusIcon(order.Status), order.Status),
			order.Contact.Name,
			order.Contact.Phone,
			order.Contact.Address,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(ordersSheetName, cell, v)
		}
	}

	_ = f.SetColWidth(ordersSheetName, "A", "A", 8)
	_ = f.SetColWidth(ordersSheetName, "B", "C", 20)
	_ = f.SetColWidth(ordersSheetName, "D", "H", 14)
	_ = f.SetColWidth(ordersSheetName, "I", "K", 22)

	return nil
}

// writeScheduleSheet пишет сетку слоты x даты с количеством заказов в ячейке.
func (e *Exporter) writeScheduleSheet(ctx context.Context, f *excelize.File, startDate, endDate time.Time) error {
	if _, err := f.NewSheet(scheduleSheetName); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	slotStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	busyStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FFEB9C"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	slots := schedule.Slots()
	for i, slot := range slots {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = f.SetCellValue(scheduleSheetName, cell, slot)
		_ = f.SetCellStyle(scheduleSheetName, cell, cell, slotStyle)
	}

	col := 2
	for currentDate := startDate; !currentDate.After(endDate); currentDate = currentDate.AddDate(0, 0, 1) {
		headerCell, _ := excelize.CoordinatesToCellName(col, 1)
		_ = f.SetCellValue(scheduleSheetName, headerCell, currentDate.Format("02.01"))
		_ = f.SetCellStyle(scheduleSheetName, headerCell, headerCell, headerStyle)

		booked, err := e.db.GetBookedSlots(ctx, currentDate)
		if err != nil {
			e.logger.Error().Err(err).Str("date", currentDate.Format("2006-01-02")).Msg("get booked slots")
			booked = map[string]int{}
		}

		for i, slot := range slots {
			cell, _ := excelize.CoordinatesToCellName(col, i+2)
			count := booked[slot]
			if count > 0 {
				_ = f.SetCellValue(scheduleSheetName, cell, count)
				_ = f.SetCellStyle(scheduleSheetName, cell, cell, busyStyle)
			}
		}
		col++
	}

	_ = f.SetColWidth(scheduleSheetName, "A", "A", 10)

	return nil
}

func statusIcon(status models.OrderStatus) string {
	switch models.Indicator(status) {
	case models.IndicatorSuccess:
		return statusIconSuccess
	case models.IndicatorFailure:
		return statusIconError
	default:
		return statusIconPending
	}
}

func kindLabel(kind string) string {
	switch kind {
	case models.KindRental:
		return "Аренда"
	case models.KindService:
		return "Сервис"
	default:
		return kind
	}
}
