// Package google экспортирует заказы в таблицу Google Sheets через
// сервисный аккаунт. Строки находятся по ID заказа в колонке A,
// индексы строк кешируются.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"klimatik/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	ordersSheet   = "Orders"
	ordersRange   = ordersSheet + "!A:M"
	idColumn      = ordersSheet + "!A:A"
	statusColumn  = "H" // колонка статуса в строке заказа
	updatedColumn = "M"

	callTimeout = 30 * time.Second
)

// ErrRowNotFound — в таблице нет строки с таким ID заказа.
var ErrRowNotFound = errors.New("order row not found")

type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
}

func NewSheetsService(credentialsFile, spreadsheetID string) (*SheetsService, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	service := &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[int64]int),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		service.WarmUpCache(ctx)
	}()

	// Периодическое обновление кеша: строки могли двигать руками.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			service.WarmUpCache(ctx)
			cancel()
		}
	}()

	return service, nil
}

// TestConnection проверяет доступ к таблице.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, ordersSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ServiceAccountEmail возвращает email сервисного аккаунта из credentials,
// чтобы оператор знал, кому выдать доступ к таблице.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// WarmUpCache наполняет кеш индексов строк, читая всю колонку ID.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, idColumn).Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)

	for i, row := range resp.Values {
		if id := cellID(row); id > 0 {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// UpsertOrder обновляет строку заказа или добавляет новую, если ее нет.
func (s *SheetsService) UpsertOrder(order *models.Order) error {
	if order == nil {
		return errors.New("order is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	rowIdx, err := s.findOrderRow(ctx, order.ID)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return s.appendOrder(ctx, order)
		}
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:M%d", ordersSheet, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{orderRowValues(order)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// UpdateOrderStatus обновляет статус и время изменения в строке заказа.
func (s *SheetsService) UpdateOrderStatus(orderID int64, status string) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	rowIdx, err := s.findOrderRow(ctx, orderID)
	if err != nil {
		return err
	}

	statusRange := fmt.Sprintf("%s!%s%d:%s%d", ordersSheet, statusColumn, rowIdx, statusColumn, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, statusRange, &sheets.ValueRange{
		Values: [][]interface{}{{status}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}

	updatedRange := fmt.Sprintf("%s!%s%d:%s%d", ordersSheet, updatedColumn, rowIdx, updatedColumn, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, updatedRange, &sheets.ValueRange{
		Values: [][]interface{}{{time.Now().Format("2006-01-02 15:04:05")}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// ReplaceOrdersSheet полностью перезаписывает лист заказов.
func (s *SheetsService) ReplaceOrdersSheet(ctx context.Context, orders []*models.Order) error {
	values := [][]interface{}{{
		"ID", "Type", "Item", "Date", "Slot", "Qty", "Total",
		"Status", "Customer", "Phone", "Address", "Created At", "Updated At",
	}}
	for _, order := range orders {
		values = append(values, orderRowValues(order))
	}

	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, ordersRange, &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear orders sheet: %w", err)
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, ordersSheet+"!A1", &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update orders sheet: %w", err)
	}

	s.cacheMu.Lock()
	s.rowCache = make(map[int64]int)
	for i, o := range orders {
		s.rowCache[o.ID] = i + 2 // данные начинаются со второй строки
	}
	s.cacheMu.Unlock()

	return nil
}

func (s *SheetsService) appendOrder(ctx context.Context, order *models.Order) error {
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, idColumn, &sheets.ValueRange{
		Values: [][]interface{}{orderRowValues(order)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}

// findOrderRow ищет индекс строки (с единицы) по ID заказа в колонке A.
func (s *SheetsService) findOrderRow(ctx context.Context, orderID int64) (int, error) {
	if orderID == 0 {
		return 0, errors.New("order id is required")
	}

	if row, ok := s.getCachedRow(orderID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, idColumn).Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if cellID(row) == orderID {
			rowIdx := i + 1
			s.setCachedRow(orderID, rowIdx)
			return rowIdx, nil
		}
	}

	return 0, ErrRowNotFound
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

// ClearCache сбрасывает кеш индексов строк.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

// cellID извлекает ID из первой ячейки строки; ID может храниться
// и числом, и строкой.
func cellID(row []interface{}) int64 {
	if len(row) == 0 {
		return 0
	}
	switch v := row[0].(type) {
	case float64:
		return int64(v)
	case string:
		id, _ := strconv.ParseInt(v, 10, 64)
		return id
	}
	return 0
}

func orderRowValues(order *models.Order) []interface{} {
	return []interface{}{
		order.ID,
		order.Kind,
		order.ItemName,
		order.Date.Format("2006-01-02"),
		order.TimeSlot,
		order.Quantity,
		order.TotalPrice,
		string(order.Status),
		order.Contact.Name,
		order.Contact.Phone,
		order.Contact.Address,
		order.CreatedAt.Format("2006-01-02 15:04:05"),
		order.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}
