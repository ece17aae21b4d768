package database

import (
	"context"
	"testing"

	"klimatik/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetTechnician(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tech := &models.Technician{
		Login:        "ivan",
		PasswordHash: "$2a$10$hash",
		Name:         "Ivan Petrov",
		Phone:        "9876543210",
		Email:        "ivan@klimatik.local",
		TelegramID:   100500,
		IsActive:     true,
	}
	require.NoError(t, db.CreateTechnician(ctx, tech))
	require.NotZero(t, tech.ID)

	byLogin, err := db.GetTechnicianByLogin(ctx, "ivan")
	require.NoError(t, err)
	assert.Equal(t, tech.ID, byLogin.ID)
	assert.Equal(t, "$2a$10$hash", byLogin.PasswordHash)

	byTg, err := db.GetTechnicianByTelegramID(ctx, 100500)
	require.NoError(t, err)
	assert.Equal(t, tech.ID, byTg.ID)

	_, err = db.GetTechnicianByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateLogin(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := &models.Technician{Login: "ivan", PasswordHash: "x", Name: "Ivan", IsActive: true}
	require.NoError(t, db.CreateTechnician(ctx, first))

	dup := &models.Technician{Login: "ivan", PasswordHash: "y", Name: "Other", IsActive: true}
	assert.Error(t, db.CreateTechnician(ctx, dup))
}

func TestListTechniciansActiveOnly(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	active := &models.Technician{Login: "a", PasswordHash: "x", Name: "Active", IsActive: true}
	inactive := &models.Technician{Login: "b", PasswordHash: "x", Name: "Fired", IsActive: false}
	require.NoError(t, db.CreateTechnician(ctx, active))
	require.NoError(t, db.CreateTechnician(ctx, inactive))

	all, err := db.ListTechnicians(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyActive, err := db.ListTechnicians(ctx, true)
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, "Active", onlyActive[0].Name)
}

func TestSetTechnicianActive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tech := &models.Technician{Login: "a", PasswordHash: "x", Name: "A", IsActive: true}
	require.NoError(t, db.CreateTechnician(ctx, tech))

	require.NoError(t, db.SetTechnicianActive(ctx, tech.ID, false))
	got, err := db.GetTechnicianByID(ctx, tech.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, db.SetTechnicianActive(ctx, 999, true), ErrNotFound)
}
