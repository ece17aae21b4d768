package database

import (
	"context"
	"fmt"
	"time"

	"klimatik/internal/models"
)

func (db *DB) CreateReview(ctx context.Context, review *models.Review) error {
	if review.Rating < 1 || review.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", review.Rating)
	}

	query := `INSERT INTO reviews (name, rating, text, approved, created_at) VALUES (?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, review.Name, review.Rating, review.Text, review.Approved, now)
	if err != nil {
		return fmt.Errorf("failed to create review: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	review.ID = id
	review.CreatedAt = now
	return nil
}

// ListReviews: approvedOnly=true — публичная выдача, новые первыми.
func (db *DB) ListReviews(ctx context.Context, approvedOnly bool) ([]*models.Review, error) {
	query := `SELECT id, name, rating, text, approved, created_at FROM reviews`
	if approvedOnly {
		query += ` WHERE approved = 1`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*models.Review
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.Name, &r.Rating, &r.Text, &r.Approved, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, &r)
	}
	return reviews, rows.Err()
}

func (db *DB) ApproveReview(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `UPDATE reviews SET approved = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to approve review: %w", err)
	}
	return checkAffected(result)
}
