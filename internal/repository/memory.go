package repository

import (
	"context"
	"sync"
	"time"

	"klimatik/internal/models"
)

// MemoryDraftRepository — fallback-хранилище черновиков в памяти процесса.
type MemoryDraftRepository struct {
	drafts     sync.Map
	rateLimits sync.Map
	ttl        time.Duration
}

func NewMemoryDraftRepository(ttl time.Duration) *MemoryDraftRepository {
	return &MemoryDraftRepository{ttl: ttl}
}

type draftEntry struct {
	draft     *models.BookingDraft
	expiresAt time.Time
}

func (r *MemoryDraftRepository) GetDraft(ctx context.Context, sessionID string) (*models.BookingDraft, error) {
	val, ok := r.drafts.Load(sessionID)
	if !ok {
		return nil, nil
	}
	entry := val.(*draftEntry)
	if r.ttl > 0 && time.Now().After(entry.expiresAt) {
		r.drafts.Delete(sessionID)
		return nil, nil
	}
	return entry.draft, nil
}

func (r *MemoryDraftRepository) SetDraft(ctx context.Context, draft *models.BookingDraft) error {
	r.drafts.Store(draft.SessionID, &draftEntry{
		draft:     draft,
		expiresAt: time.Now().Add(r.ttl),
	})
	return nil
}

func (r *MemoryDraftRepository) ClearDraft(ctx context.Context, sessionID string) error {
	r.drafts.Delete(sessionID)
	return nil
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

func (r *MemoryDraftRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, _ := r.rateLimits.LoadOrStore(key, &rateLimitEntry{})
	entry := val.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.count == 0 || now.After(entry.expiresAt) {
		entry.count = 1
		entry.expiresAt = now.Add(window)
		return true, nil
	}

	entry.count++
	return entry.count <= limit, nil
}
