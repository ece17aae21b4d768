package database

import (
	"context"
	"testing"
	"time"

	"klimatik/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncQueueLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.SyncTask{
		TaskType: "upsert",
		OrderID:  1,
		Payload:  `{"order_id":1}`,
		Status:   "pending",
	}
	require.NoError(t, db.CreateSyncTask(ctx, task))
	require.NotZero(t, task.ID)

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "upsert", pending[0].TaskType)

	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, "completed", "", nil))

	pending, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSyncQueueRetryScheduling(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.SyncTask{TaskType: "upsert", OrderID: 2, Payload: `{}`, Status: "pending"}
	require.NoError(t, db.CreateSyncTask(ctx, task))

	// Ретрай в будущем не виден в выборке.
	future := time.Now().Add(time.Hour)
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, "retry", "rate limited", &future))

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Прошедший next_retry_at возвращает задачу в выборку.
	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, "retry", "rate limited", &past))

	pending, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].RetryCount)
	assert.Equal(t, "rate limited", pending[0].LastError)
}

func TestCleanupSyncTasks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.SyncTask{TaskType: "upsert", OrderID: 3, Payload: `{}`, Status: "pending"}
	require.NoError(t, db.CreateSyncTask(ctx, task))
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, "completed", "", nil))

	// processed_at только что -> под keepDays=1 не попадает.
	deleted, err := db.CleanupSyncTasks(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0, deleted)

	deleted, err = db.CleanupSyncTasks(ctx, -1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}
