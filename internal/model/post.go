package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// PostStatus is the lifecycle state of a ScheduledPost.
//
// Transitions:
//
//	scheduled -> published   (dispatcher, publish ok)
//	scheduled -> failed      (dispatcher, publish error / timeout / no publisher)
//	scheduled -> scheduled   (owner edit, new time in the future)
//	scheduled -> (deleted)   (owner cancel)
//
// published and failed are terminal.
type PostStatus string

const (
	StatusScheduled PostStatus = "scheduled"
	StatusPublished PostStatus = "published"
	StatusFailed    PostStatus = "failed"
)

func (s PostStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusPublished, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no automatic transition leaves s.
func (s PostStatus) Terminal() bool {
	return s == StatusPublished || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal dispatcher transition.
func CanTransition(from, to PostStatus) bool {
	return from == StatusScheduled && to.Terminal()
}

// ScheduledPost is one unit of publishing work.
type ScheduledPost struct {
	ID              string     `json:"id"`
	OwnerID         int64      `json:"owner_id"`
	SocialAccountID string     `json:"social_account_id"`
	Platform        string     `json:"platform"`
	Content         string     `json:"content"`
	MediaURL        string     `json:"media_url,omitempty"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	Status          PostStatus `json:"status"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Due reports whether p should be picked up by a tick running at now.
func (p ScheduledPost) Due(now time.Time) bool {
	return p.Status == StatusScheduled && !p.ScheduledAt.After(now)
}

// Excerpt returns at most n bytes of the content, for logs. The cut never
// splits a UTF-8 sequence.
func (p ScheduledPost) Excerpt(n int) string {
	s := strings.TrimSpace(p.Content)
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// SocialAccount binds an owner to credentials on one platform.
// Created through an external OAuth flow; the scheduler only reads it.
type SocialAccount struct {
	ID             string     `json:"id"`
	OwnerID        int64      `json:"owner_id"`
	Platform       string     `json:"platform"`
	PageID         string     `json:"page_id,omitempty"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
