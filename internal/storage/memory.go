package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"postsched/internal/model"
)

// memoryStore keeps everything in maps. The mutex only guards map access;
// no I/O happens while it is held.
type memoryStore struct {
	mu       sync.RWMutex
	posts    map[string]model.ScheduledPost
	accounts map[string]model.SocialAccount
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memoryStore{
		posts:    map[string]model.ScheduledPost{},
		accounts: map[string]model.SocialAccount{},
	}
}

func (s *memoryStore) Migrate(ctx context.Context) error { return nil }
func (s *memoryStore) Close() error                      { return nil }

func (s *memoryStore) ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledPost, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.ScheduledPost, 0)
	for _, p := range s.posts {
		if p.Due(now) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) Persist(ctx context.Context, id string, status model.PostStatus, errMsg string) error {
	if !model.CanTransition(model.StatusScheduled, status) {
		return ErrInvalidTransition
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != model.StatusScheduled {
		return ErrNotScheduled
	}
	p.Status = status
	p.ErrorMessage = errMsg
	s.posts[id] = p
	return nil
}

func (s *memoryStore) CreatePost(ctx context.Context, p model.ScheduledPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[p.SocialAccountID]; !ok {
		return ErrNotFound
	}
	p.ScheduledAt = fromMillis(toMillis(p.ScheduledAt))
	p.CreatedAt = fromMillis(toMillis(p.CreatedAt))
	s.posts[p.ID] = p
	return nil
}

func (s *memoryStore) GetPost(ctx context.Context, id string) (model.ScheduledPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return model.ScheduledPost{}, ErrNotFound
	}
	return p, nil
}

func (s *memoryStore) ListPosts(ctx context.Context, ownerID int64) ([]model.ScheduledPost, error) {
	s.mu.RLock()
	out := make([]model.ScheduledPost, 0)
	for _, p := range s.posts {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *memoryStore) UpdatePost(ctx context.Context, p model.ScheduledPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.posts[p.ID]
	if !ok || cur.OwnerID != p.OwnerID {
		return ErrNotFound
	}
	if cur.Status != model.StatusScheduled {
		return ErrNotScheduled
	}
	cur.Content = p.Content
	cur.MediaURL = p.MediaURL
	cur.ScheduledAt = fromMillis(toMillis(p.ScheduledAt))
	s.posts[p.ID] = cur
	return nil
}

func (s *memoryStore) DeletePost(ctx context.Context, ownerID int64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.posts[id]
	if !ok || cur.OwnerID != ownerID {
		return ErrNotFound
	}
	if cur.Status != model.StatusScheduled {
		return ErrNotScheduled
	}
	delete(s.posts, id)
	return nil
}

func (s *memoryStore) CreateSocialAccount(ctx context.Context, a model.SocialAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.CreatedAt = fromMillis(toMillis(a.CreatedAt))
	s.accounts[a.ID] = a
	return nil
}

func (s *memoryStore) GetSocialAccount(ctx context.Context, id string) (model.SocialAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return model.SocialAccount{}, ErrNotFound
	}
	return a, nil
}

func (s *memoryStore) ListSocialAccounts(ctx context.Context, ownerID int64) ([]model.SocialAccount, error) {
	s.mu.RLock()
	out := make([]model.SocialAccount, 0)
	for _, a := range s.accounts {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryStore) DeleteSocialAccount(ctx context.Context, ownerID int64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.OwnerID != ownerID {
		return ErrNotFound
	}
	for _, p := range s.posts {
		if p.SocialAccountID == id && p.Status == model.StatusScheduled {
			return ErrAccountInUse
		}
	}
	for pid, p := range s.posts {
		if p.SocialAccountID == id {
			delete(s.posts, pid)
		}
	}
	delete(s.accounts, id)
	return nil
}
