package users

import (
	"context"
	"strings"
	"sync"

	"github.com/dmitrijs2005/peerlearn/internal/common"
)

// MemoryRepository keeps users in process memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*User)}
}

func (r *MemoryRepository) Create(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if strings.EqualFold(u.Email, user.Email) {
			return common.ErrConflict
		}
		if user.StudentID != "" && u.StudentID == user.StudentID {
			return common.ErrConflict
		}
	}
	r.byID[user.ID] = user.clone()
	return nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if strings.EqualFold(u.Email, email) {
			return u.clone(), nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u.clone(), nil
}

func (r *MemoryRepository) Update(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[user.ID]; !ok {
		return common.ErrNotFound
	}
	r.byID[user.ID] = user.clone()
	return nil
}

func (r *MemoryRepository) StudentIDTaken(ctx context.Context, studentID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if u.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}
