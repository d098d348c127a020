package storage

import (
	"context"
	"errors"
	"time"

	"postsched/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrNotScheduled is returned when a write requires the post to still be
	// scheduled but it already reached a terminal state.
	ErrNotScheduled = errors.New("post is not scheduled")
	// ErrAccountInUse is returned when unlinking a social account that still has
	// scheduled posts.
	ErrAccountInUse = errors.New("social account has scheduled posts")
	// ErrInvalidTransition is returned by Persist for a non-terminal target status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Config configures storage.
//
// Driver values:
//   - "memory" (default when empty)
//   - "sqlite": Path is the database file (":memory:" for a private in-memory DB)
//   - "postgres": DSN is a libpq/pgx connection string
type Config struct {
	Driver       string
	Path         string
	DSN          string
	BusyTimeout  time.Duration // sqlite only; 0 means default
	MaxOpenConns int           // postgres only; 0 means default
}

// PostStore is the part of the store the dispatch engine consumes.
type PostStore interface {
	// ListDue returns posts with status=scheduled and scheduled_at <= now,
	// oldest due first. limit <= 0 means no limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.ScheduledPost, error)
	// Persist writes the terminal status and error message of a post in one
	// atomic update. It only applies while the row is still scheduled.
	Persist(ctx context.Context, id string, status model.PostStatus, errMsg string) error
}

// Store is the full persistence API used by the app and the owner-facing service.
type Store interface {
	PostStore

	CreatePost(ctx context.Context, p model.ScheduledPost) error
	GetPost(ctx context.Context, id string) (model.ScheduledPost, error)
	// ListPosts returns the owner's posts, newest created first.
	ListPosts(ctx context.Context, ownerID int64) ([]model.ScheduledPost, error)
	// UpdatePost rewrites the editable fields (content, media, scheduled_at)
	// of a post that is still scheduled.
	UpdatePost(ctx context.Context, p model.ScheduledPost) error
	// DeletePost removes a post that is still scheduled (owner cancellation).
	DeletePost(ctx context.Context, ownerID int64, id string) error

	CreateSocialAccount(ctx context.Context, a model.SocialAccount) error
	GetSocialAccount(ctx context.Context, id string) (model.SocialAccount, error)
	ListSocialAccounts(ctx context.Context, ownerID int64) ([]model.SocialAccount, error)
	// DeleteSocialAccount refuses with ErrAccountInUse while a scheduled post
	// references the account. Terminal posts referencing it are removed with it.
	DeleteSocialAccount(ctx context.Context, ownerID int64, id string) error

	Migrate(ctx context.Context) error
	Close() error
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
