package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"klimatik/internal/models"
)

// UpsertContent сохраняет JSON-документ CMS-раздела целиком.
func (db *DB) UpsertContent(ctx context.Context, section string, payload []byte) error {
	query := `INSERT INTO content (section, payload, updated_at) VALUES (?, ?, ?)
              ON CONFLICT(section) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	_, err := db.ExecContext(ctx, query, section, string(payload), time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert content section %q: %w", section, err)
	}
	return nil
}

func (db *DB) GetContent(ctx context.Context, section string) (*models.ContentSection, error) {
	query := `SELECT section, payload, updated_at FROM content WHERE section = ?`
	var cs models.ContentSection
	var payload string
	err := db.QueryRowContext(ctx, query, section).Scan(&cs.Section, &payload, &cs.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content section: %w", err)
	}
	cs.Payload = []byte(payload)
	return &cs, nil
}

// ListContentSections возвращает имена всех сохраненных разделов.
func (db *DB) ListContentSections(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT section FROM content ORDER BY section`)
	if err != nil {
		return nil, fmt.Errorf("failed to list content sections: %w", err)
	}
	defer rows.Close()

	var sections []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		sections = append(sections, s)
	}
	return sections, rows.Err()
}
