package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"klimatik/internal/models"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func TestOrderRowValues(t *testing.T) {
	createdAt := time.Date(2024, 6, 20, 10, 0, 0, 0, time.UTC)
	updatedAt := time.Date(2024, 6, 21, 11, 0, 0, 0, time.UTC)

	order := &models.Order{
		ID:         123,
		Kind:       models.KindService,
		ItemName:   "Gas refill",
		Date:       time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		TimeSlot:   "10:00",
		Quantity:   1,
		TotalPrice: 1500,
		Status:     models.StatusApproved,
		Contact:    models.Contact{Name: "Test User", Phone: "9991234567", Address: "Lenina 1"},
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}

	values := orderRowValues(order)

	expected := []interface{}{
		int64(123),
		models.KindService,
		"Gas refill",
		"2024-07-01",
		"10:00",
		int64(1),
		float64(1500),
		"approved",
		"Test User",
		"9991234567",
		"Lenina 1",
		"2024-06-20 10:00:00",
		"2024-06-21 11:00:00",
	}

	if len(values) != len(expected) {
		t.Fatalf("Expected %d values, got %d", len(expected), len(values))
	}
	for i, v := range values {
		if v != expected[i] {
			t.Errorf("At index %d: expected %v, got %v", i, expected[i], v)
		}
	}
}

func TestCellID(t *testing.T) {
	cases := []struct {
		row  []interface{}
		want int64
	}{
		{nil, 0},
		{[]interface{}{}, 0},
		{[]interface{}{float64(42)}, 42},
		{[]interface{}{"17"}, 17},
		{[]interface{}{"not a number"}, 0},
		{[]interface{}{true}, 0},
	}
	for _, tc := range cases {
		if got := cellID(tc.row); got != tc.want {
			t.Errorf("cellID(%v) = %d, want %d", tc.row, got, tc.want)
		}
	}
}

func TestCacheOperations(t *testing.T) {
	s := &SheetsService{rowCache: make(map[int64]int)}

	if _, ok := s.getCachedRow(1); ok {
		t.Fatalf("expected empty cache")
	}

	s.setCachedRow(1, 5)
	row, ok := s.getCachedRow(1)
	if !ok || row != 5 {
		t.Fatalf("expected row 5, got %d ok=%v", row, ok)
	}

	s.ClearCache()
	if _, ok := s.getCachedRow(1); ok {
		t.Fatalf("expected cache cleared")
	}
}

func setupMockServer(ctx context.Context) (*http.ServeMux, *httptest.Server, *SheetsService) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	srv, _ := sheets.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	s := &SheetsService{
		service:       srv,
		spreadsheetID: "orders_tid",
		rowCache:      make(map[int64]int),
	}
	return mux, server, s
}

func TestSheetsService_TestConnection(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()

	mux.HandleFunc("/v4/spreadsheets/orders_tid/values/Orders!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})

	if err := s.TestConnection(ctx); err != nil {
		t.Errorf("TestConnection failed: %v", err)
	}
}

func TestFindOrderRow(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()

	mux.HandleFunc("/v4/spreadsheets/orders_tid/values/Orders!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{
			{"ID"}, {"101"}, {"102"},
		}})
	})

	row, err := s.findOrderRow(ctx, 102)
	if err != nil {
		t.Fatalf("findOrderRow: %v", err)
	}
	if row != 3 {
		t.Fatalf("expected row 3, got %d", row)
	}

	// Второй вызов идет из кеша.
	if cached, ok := s.getCachedRow(102); !ok || cached != 3 {
		t.Fatalf("expected cached row 3, got %d ok=%v", cached, ok)
	}

	if _, err := s.findOrderRow(ctx, 999); err != ErrRowNotFound {
		t.Fatalf("expected ErrRowNotFound, got %v", err)
	}
}

func TestReplaceOrdersSheet(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()

	cleared := false
	var got sheets.ValueRange

	mux.HandleFunc("/v4/spreadsheets/orders_tid/values/Orders!A:M:clear", func(w http.ResponseWriter, r *http.Request) {
		cleared = true
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	})
	mux.HandleFunc("/v4/spreadsheets/orders_tid/values/Orders!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	orders := []*models.Order{
		{ID: 7, Kind: models.KindService, ItemName: "Gas refill", Date: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), TimeSlot: "10:00", Status: models.StatusPending},
		{ID: 8, Kind: models.KindRental, ItemName: "Window AC", Date: time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC), TimeSlot: "3_months", Status: models.StatusApproved},
	}

	if err := s.ReplaceOrdersSheet(ctx, orders); err != nil {
		t.Fatalf("ReplaceOrdersSheet: %v", err)
	}
	if !cleared {
		t.Fatal("expected sheet to be cleared before rewrite")
	}
	if len(got.Values) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(got.Values))
	}
	if got.Values[0][0] != "ID" {
		t.Fatalf("expected header row first, got %v", got.Values[0])
	}

	// Кеш перестроен по новым строкам.
	if row, ok := s.getCachedRow(7); !ok || row != 2 {
		t.Fatalf("expected cached row 2 for id 7, got %d ok=%v", row, ok)
	}
	if row, ok := s.getCachedRow(8); !ok || row != 3 {
		t.Fatalf("expected cached row 3 for id 8, got %d ok=%v", row, ok)
	}
}

func TestServiceAccountEmail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(path, []byte(`{"client_email":"robot@project.iam.gserviceaccount.com"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	email, err := ServiceAccountEmail(path)
	if err != nil {
		t.Fatalf("ServiceAccountEmail: %v", err)
	}
	if email != "robot@project.iam.gserviceaccount.com" {
		t.Fatalf("unexpected email %q", email)
	}

	if _, err := ServiceAccountEmail(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWarmUpCache(t *testing.T) {
	ctx := context.Background()
	mux, server, s := setupMockServer(ctx)
	defer server.Close()

	mux.HandleFunc("/v4/spreadsheets/orders_tid/values/Orders!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{
			{"ID"}, {float64(7)}, {"8"},
		}})
	})

	if err := s.WarmUpCache(ctx); err != nil {
		t.Fatalf("warm up: %v", err)
	}

	if row, ok := s.getCachedRow(7); !ok || row != 2 {
		t.Fatalf("expected row 2 for id 7, got %d ok=%v", row, ok)
	}
	if row, ok := s.getCachedRow(8); !ok || row != 3 {
		t.Fatalf("expected row 3 for id 8, got %d ok=%v", row, ok)
	}
}
