package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"klimatik/internal/models"
)

const technicianColumns = `id, login, password_hash, name, phone, email, telegram_id, is_active, created_at, updated_at`

func (db *DB) CreateTechnician(ctx context.Context, tech *models.Technician) error {
	query := `INSERT INTO technicians (login, password_hash, name, phone, email, telegram_id, is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		tech.Login, tech.PasswordHash, tech.Name, tech.Phone, tech.Email,
		tech.TelegramID, tech.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create technician: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	tech.ID = id
	tech.CreatedAt = now
	tech.UpdatedAt = now
	return nil
}

func (db *DB) GetTechnicianByLogin(ctx context.Context, login string) (*models.Technician, error) {
	query := `SELECT ` + technicianColumns + ` FROM technicians WHERE login = ?`
	return db.queryTechnician(ctx, query, login)
}

func (db *DB) GetTechnicianByID(ctx context.Context, id int64) (*models.Technician, error) {
	query := `SELECT ` + technicianColumns + ` FROM technicians WHERE id = ?`
	return db.queryTechnician(ctx, query, id)
}

func (db *DB) GetTechnicianByTelegramID(ctx context.Context, telegramID int64) (*models.Technician, error) {
	query := `SELECT ` + technicianColumns + ` FROM technicians WHERE telegram_id = ?`
	return db.queryTechnician(ctx, query, telegramID)
}

func (db *DB) ListTechnicians(ctx context.Context, activeOnly bool) ([]*models.Technician, error) {
	query := `SELECT ` + technicianColumns + ` FROM technicians`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name ASC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query technicians: %w", err)
	}
	defer rows.Close()

	var techs []*models.Technician
	for rows.Next() {
		tech, err := scanTechnician(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan technician: %w", err)
		}
		techs = append(techs, tech)
	}
	return techs, rows.Err()
}

func (db *DB) SetTechnicianActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE technicians SET is_active = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update technician: %w", err)
	}
	return checkAffected(result)
}

func (db *DB) queryTechnician(ctx context.Context, query string, args ...any) (*models.Technician, error) {
	row := db.QueryRowContext(ctx, query, args...)
	tech, err := scanTechnician(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query technician: %w", err)
	}
	return tech, nil
}

func scanTechnician(row rowScanner) (*models.Technician, error) {
	var t models.Technician
	var phone, email sql.NullString
	var telegramID sql.NullInt64
	err := row.Scan(
		&t.ID, &t.Login, &t.PasswordHash, &t.Name, &phone, &email,
		&telegramID, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Phone = phone.String
	t.Email = email.String
	t.TelegramID = telegramID.Int64
	return &t, nil
}
