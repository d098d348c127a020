// Package posts implements the owner-facing operations on scheduled posts and
// linked social accounts.
package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"postsched/internal/model"
	"postsched/internal/publisher"
	"postsched/internal/storage"
	logx "postsched/pkg/logx"
)

var (
	ErrNotFound            = storage.ErrNotFound
	ErrNotInFuture         = errors.New("scheduled time must be in the future")
	ErrNotEditable         = errors.New("only scheduled posts can be changed")
	ErrEmptyContent        = errors.New("content is required")
	ErrUnsupportedPlatform = errors.New("platform not supported")
	ErrAlreadyLinked       = errors.New("social account for platform already linked")
	ErrMissingToken        = errors.New("access token is required")
	ErrAccountInUse        = storage.ErrAccountInUse
)

type CreateInput struct {
	SocialAccountID string    `json:"social_account_id"`
	Content         string    `json:"content"`
	MediaURL        string    `json:"media_url,omitempty"`
	ScheduledAt     time.Time `json:"scheduled_at"`
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Content     *string    `json:"content,omitempty"`
	MediaURL    *string    `json:"media_url,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

type LinkInput struct {
	Platform       string     `json:"platform"`
	PageID         string     `json:"page_id,omitempty"`
	AccessToken    string     `json:"access_token"`
	RefreshToken   string     `json:"refresh_token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

type Service struct {
	store storage.Store
	log   logx.Logger
	now   func() time.Time
	newID func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func New(store storage.Store, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		store: store,
		log:   log.With(logx.String("comp", "posts")),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create schedules a post on one of the owner's linked accounts. The platform
// is taken from the account.
func (s *Service) Create(ctx context.Context, ownerID int64, in CreateInput) (model.ScheduledPost, error) {
	acc, err := s.ownedAccount(ctx, ownerID, in.SocialAccountID)
	if err != nil {
		return model.ScheduledPost{}, err
	}
	if strings.TrimSpace(in.Content) == "" {
		return model.ScheduledPost{}, ErrEmptyContent
	}
	now := s.now()
	at := in.ScheduledAt.UTC().Truncate(time.Millisecond)
	if !at.After(now) {
		return model.ScheduledPost{}, ErrNotInFuture
	}

	p := model.ScheduledPost{
		ID:              s.newID(),
		OwnerID:         ownerID,
		SocialAccountID: acc.ID,
		Platform:        acc.Platform,
		Content:         in.Content,
		MediaURL:        strings.TrimSpace(in.MediaURL),
		ScheduledAt:     at,
		Status:          model.StatusScheduled,
		CreatedAt:       now.UTC().Truncate(time.Millisecond),
	}
	if err := s.store.CreatePost(ctx, p); err != nil {
		return model.ScheduledPost{}, fmt.Errorf("create post: %w", err)
	}
	s.log.Info("post scheduled",
		logx.String("post_id", p.ID),
		logx.Int64("owner_id", ownerID),
		logx.String("platform", p.Platform),
		logx.Time("scheduled_at", p.ScheduledAt),
	)
	return p, nil
}

func (s *Service) List(ctx context.Context, ownerID int64) ([]model.ScheduledPost, error) {
	return s.store.ListPosts(ctx, ownerID)
}

func (s *Service) Get(ctx context.Context, ownerID int64, id string) (model.ScheduledPost, error) {
	p, err := s.store.GetPost(ctx, id)
	if err != nil {
		return model.ScheduledPost{}, err
	}
	if p.OwnerID != ownerID {
		return model.ScheduledPost{}, ErrNotFound
	}
	return p, nil
}

// Update edits a post while it is still scheduled. A new scheduled time must
// be in the future.
func (s *Service) Update(ctx context.Context, ownerID int64, id string, in UpdateInput) (model.ScheduledPost, error) {
	p, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return model.ScheduledPost{}, err
	}
	if p.Status != model.StatusScheduled {
		return model.ScheduledPost{}, ErrNotEditable
	}
	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return model.ScheduledPost{}, ErrEmptyContent
		}
		p.Content = *in.Content
	}
	if in.MediaURL != nil {
		p.MediaURL = strings.TrimSpace(*in.MediaURL)
	}
	if in.ScheduledAt != nil {
		at := in.ScheduledAt.UTC().Truncate(time.Millisecond)
		if !at.After(s.now()) {
			return model.ScheduledPost{}, ErrNotInFuture
		}
		p.ScheduledAt = at
	}
	if err := s.store.UpdatePost(ctx, p); err != nil {
		return model.ScheduledPost{}, mapStoreErr(err)
	}
	s.log.Info("post updated", logx.String("post_id", id), logx.Int64("owner_id", ownerID))
	return p, nil
}

// Cancel deletes a post that has not been dispatched yet.
func (s *Service) Cancel(ctx context.Context, ownerID int64, id string) error {
	if err := s.store.DeletePost(ctx, ownerID, id); err != nil {
		return mapStoreErr(err)
	}
	s.log.Info("post cancelled", logx.String("post_id", id), logx.Int64("owner_id", ownerID))
	return nil
}

// LinkAccount stores credentials obtained by the external OAuth flow.
// An owner links at most one account per platform.
func (s *Service) LinkAccount(ctx context.Context, ownerID int64, in LinkInput) (model.SocialAccount, error) {
	p := publisher.ParsePlatform(in.Platform)
	if p == publisher.Unknown {
		return model.SocialAccount{}, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, in.Platform)
	}
	if strings.TrimSpace(in.AccessToken) == "" {
		return model.SocialAccount{}, ErrMissingToken
	}
	existing, err := s.store.ListSocialAccounts(ctx, ownerID)
	if err != nil {
		return model.SocialAccount{}, err
	}
	for _, a := range existing {
		if a.Platform == p.String() {
			return model.SocialAccount{}, fmt.Errorf("%w: %s", ErrAlreadyLinked, p)
		}
	}

	a := model.SocialAccount{
		ID:             s.newID(),
		OwnerID:        ownerID,
		Platform:       p.String(),
		PageID:         strings.TrimSpace(in.PageID),
		AccessToken:    in.AccessToken,
		RefreshToken:   in.RefreshToken,
		TokenExpiresAt: in.TokenExpiresAt,
		CreatedAt:      s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.CreateSocialAccount(ctx, a); err != nil {
		return model.SocialAccount{}, fmt.Errorf("link account: %w", err)
	}
	s.log.Info("social account linked", logx.String("account_id", a.ID), logx.String("platform", a.Platform), logx.Int64("owner_id", ownerID))
	return a, nil
}

func (s *Service) ListAccounts(ctx context.Context, ownerID int64) ([]model.SocialAccount, error) {
	return s.store.ListSocialAccounts(ctx, ownerID)
}

// UnlinkAccount is refused while scheduled posts reference the account.
func (s *Service) UnlinkAccount(ctx context.Context, ownerID int64, id string) error {
	if err := s.store.DeleteSocialAccount(ctx, ownerID, id); err != nil {
		return err
	}
	s.log.Info("social account unlinked", logx.String("account_id", id), logx.Int64("owner_id", ownerID))
	return nil
}

func (s *Service) ownedAccount(ctx context.Context, ownerID int64, id string) (model.SocialAccount, error) {
	acc, err := s.store.GetSocialAccount(ctx, id)
	if err != nil {
		return model.SocialAccount{}, err
	}
	if acc.OwnerID != ownerID {
		return model.SocialAccount{}, ErrNotFound
	}
	return acc, nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, storage.ErrNotScheduled) {
		return ErrNotEditable
	}
	return err
}
