package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"klimatik/internal/models"
)

// SyncCatalog приводит таблицу каталога к списку из конфига и
// обновляет кэш в памяти.
func (db *DB) SyncCatalog(ctx context.Context, items []models.CatalogItem) error {
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		for _, item := range items {
			query := `INSERT INTO catalog_items (id, kind, name, description, price, durations, sort_order, is_active, created_at, updated_at)
                      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                      ON CONFLICT(id) DO UPDATE SET
                        kind = excluded.kind,
                        name = excluded.name,
                        description = excluded.description,
                        price = excluded.price,
                        durations = excluded.durations,
                        sort_order = excluded.sort_order,
                        is_active = excluded.is_active,
                        updated_at = excluded.updated_at`
			_, err := tx.ExecContext(ctx, query,
				item.ID, item.Kind, item.Name, item.Description, item.Price,
				strings.Join(item.Durations, ","), item.SortOrder, item.IsActive, now, now,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert catalog item %d: %w", item.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.setCatalogCache(items)
	return nil
}

func (db *DB) setCatalogCache(items []models.CatalogItem) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.catalogCache = make(map[int64]models.CatalogItem, len(items))
	for _, item := range items {
		db.catalogCache[item.ID] = item
	}
	db.sortedItems = items
}

// GetCatalogItem читает позицию из кэша; промах кэша уходит в БД.
func (db *DB) GetCatalogItem(ctx context.Context, id int64) (*models.CatalogItem, error) {
	db.mu.RLock()
	item, ok := db.catalogCache[id]
	db.mu.RUnlock()
	if ok {
		return &item, nil
	}

	query := `SELECT id, kind, name, description, price, durations, sort_order, is_active, created_at, updated_at
              FROM catalog_items WHERE id = ?`
	row := db.QueryRowContext(ctx, query, id)
	got, err := scanCatalogItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog item: %w", err)
	}
	return got, nil
}

// GetActiveCatalog возвращает активные позиции; kind == "" — все виды.
func (db *DB) GetActiveCatalog(ctx context.Context, kind string) ([]models.CatalogItem, error) {
	query := `SELECT id, kind, name, description, price, durations, sort_order, is_active, created_at, updated_at
              FROM catalog_items WHERE is_active = 1`
	args := []any{}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY sort_order ASC, id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var items []models.CatalogItem
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan catalog item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// DeactivateCatalogItem снимает позицию с публикации.
func (db *DB) DeactivateCatalogItem(ctx context.Context, id int64) error {
	query := `UPDATE catalog_items SET is_active = 0, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate catalog item: %w", err)
	}

	db.mu.Lock()
	if item, ok := db.catalogCache[id]; ok {
		item.IsActive = false
		db.catalogCache[id] = item
	}
	db.mu.Unlock()

	return checkAffected(result)
}

func scanCatalogItem(row rowScanner) (*models.CatalogItem, error) {
	var item models.CatalogItem
	var durations sql.NullString
	err := row.Scan(
		&item.ID, &item.Kind, &item.Name, &item.Description, &item.Price,
		&durations, &item.SortOrder, &item.IsActive, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if durations.String != "" {
		item.Durations = strings.Split(durations.String, ",")
	}
	return &item, nil
}
