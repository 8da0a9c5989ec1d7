package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/Quill/internal/model"
)

var (
	_ FileStore         = (*MemoryStore)(nil)
	_ MessageStore      = (*MemoryStore)(nil)
	_ SubscriptionStore = (*MemoryStore)(nil)
)

// MemoryStore keeps files, messages and subscriptions in maps guarded by a
// single RWMutex. It backs the single-process server and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	files    map[string]*model.File
	keys     map[string]string
	messages map[string][]model.Message
	subs     map[string]time.Time
	now      func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:    make(map[string]*model.File),
		keys:     make(map[string]string),
		messages: make(map[string][]model.Message),
		subs:     make(map[string]time.Time),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Create(_ context.Context, file *model.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[file.Key]; ok {
		return fmt.Errorf("file with key %q: %w", file.Key, model.ErrDuplicateUpload)
	}
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	now := m.now()
	file.UploadStatus = model.StatusPending
	file.CreatedAt = now
	file.UpdatedAt = now
	rec := *file
	m.files[rec.ID] = &rec
	m.keys[rec.Key] = rec.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*model.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, model.ErrNotFound)
	}
	// Returning a copy keeps callers away from internal state.
	f := *rec
	return &f, nil
}

func (m *MemoryStore) GetOwned(ctx context.Context, id, userID string) (*model.File, error) {
	f, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !f.OwnedBy(userID) {
		return nil, fmt.Errorf("file %s: %w", id, model.ErrNotFound)
	}
	return f, nil
}

func (m *MemoryStore) FindByKey(ctx context.Context, key string) (*model.File, error) {
	m.mu.RLock()
	id, ok := m.keys[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("file with key %q: %w", key, model.ErrNotFound)
	}
	return m.Get(ctx, id)
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, status model.UploadStatus, msg string) error {
	if !status.Valid() {
		return fmt.Errorf("status %q: %w", status, model.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.files[id]
	if !ok {
		return fmt.Errorf("file %s: %w", id, model.ErrNotFound)
	}
	if rec.UploadStatus.Terminal() {
		return fmt.Errorf("file %s is %s: %w", id, rec.UploadStatus, model.ErrStatusFinal)
	}
	rec.UploadStatus = status
	rec.StatusMessage = msg
	rec.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) Append(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[msg.FileID]; !ok {
		return fmt.Errorf("file %s: %w", msg.FileID, model.ErrNotFound)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := m.now()
	log := m.messages[msg.FileID]
	if n := len(log); n > 0 && !now.After(log[n-1].CreatedAt) {
		now = log[n-1].CreatedAt.Add(time.Microsecond)
	}
	msg.CreatedAt = now
	m.messages[msg.FileID] = append(log, *msg)
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, fileID, userID string, n int) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owned := m.ownedLocked(fileID, userID)
	if n <= 0 || len(owned) == 0 {
		return nil, nil
	}
	if len(owned) > n {
		owned = owned[len(owned)-n:]
	}
	return owned, nil
}

func (m *MemoryStore) Page(_ context.Context, fileID, userID string, limit int, cursor string) ([]model.Message, string, error) {
	if limit <= 0 {
		return nil, "", nil
	}
	m.mu.RLock()
	owned := m.ownedLocked(fileID, userID)
	m.mu.RUnlock()

	// Walk newest to oldest; the cursor is the id of the last message the
	// caller already has.
	end := len(owned)
	if cursor != "" {
		end = -1
		for i, msg := range owned {
			if msg.ID == cursor {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, "", fmt.Errorf("cursor %q: %w", cursor, model.ErrValidation)
		}
	}
	var out []model.Message
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, owned[i])
	}
	next := ""
	if len(out) == limit && end-limit > 0 {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

// ownedLocked returns a copy of the messages of fileID written by userID.
// Callers hold at least the read lock.
func (m *MemoryStore) ownedLocked(fileID, userID string) []model.Message {
	var out []model.Message
	for _, msg := range m.messages[fileID] {
		if msg.UserID == userID {
			out = append(out, msg)
		}
	}
	return out
}

func (m *MemoryStore) IsSubscribed(_ context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	end, ok := m.subs[userID]
	return ok && end.After(m.now()), nil
}

func (m *MemoryStore) SetSubscription(_ context.Context, userID string, periodEnd time.Time) error {
	m.mu.Lock()
	m.subs[userID] = periodEnd.UTC()
	m.mu.Unlock()
	return nil
}
