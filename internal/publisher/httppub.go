package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"postsched/internal/model"
	logx "postsched/pkg/logx"
)

var (
	// ErrRateLimited is returned when the platform answers 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrPacing is returned when the client-side pacing delay would outlast
	// the publish deadline.
	ErrPacing = errors.New("rate pacing delay exceeds publish timeout")
)

// AccountSource resolves the linked social account of a post.
type AccountSource interface {
	GetSocialAccount(ctx context.Context, id string) (model.SocialAccount, error)
}

// HTTPPublisher POSTs posts to a platform endpoint using the linked account's
// access token. One instance per platform; the client is shared.
type HTTPPublisher struct {
	platform Platform
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	accounts AccountSource
	log      logx.Logger
}

type deliveryRequest struct {
	PostID      string    `json:"post_id"`
	PageID      string    `json:"page_id,omitempty"`
	Content     string    `json:"content"`
	MediaURL    string    `json:"media_url,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

type deliveryError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewHTTPPublisher builds a publisher for one platform. limiter may be nil.
func NewHTTPPublisher(p Platform, endpoint string, client *http.Client, limiter *rate.Limiter, accounts AccountSource, log logx.Logger) *HTTPPublisher {
	if client == nil {
		client = NewClient(0)
	}
	return &HTTPPublisher{
		platform: p,
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
		limiter:  limiter,
		accounts: accounts,
		log:      log.With(logx.String("platform", p.String())),
	}
}

// NewClient returns a pooled client shared by every HTTP publisher.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func (p *HTTPPublisher) Publish(ctx context.Context, post model.ScheduledPost) error {
	if p.accounts == nil {
		return errors.New("no account source")
	}
	acc, err := p.accounts.GetSocialAccount(ctx, post.SocialAccountID)
	if err != nil {
		return fmt.Errorf("load social account: %w", err)
	}
	if strings.TrimSpace(acc.AccessToken) == "" {
		return errors.New("social account has no access token")
	}
	if acc.TokenExpiresAt != nil && !acc.TokenExpiresAt.After(time.Now()) {
		return errors.New("access token expired")
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			return ErrPacing
		}
	}

	body, err := json.Marshal(deliveryRequest{
		PostID:      post.ID,
		PageID:      acc.PageID,
		Content:     post.Content,
		MediaURL:    post.MediaURL,
		ScheduledAt: post.ScheduledAt,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+acc.AccessToken)
	req.Header.Set("Idempotency-Key", post.ID)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	p.log.Debug("publish response",
		logx.String("post_id", post.ID),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("%s: HTTP %d: %s", p.platform, resp.StatusCode, responseDetail(raw))
	}
}

func responseDetail(raw []byte) string {
	var de deliveryError
	if err := json.Unmarshal(raw, &de); err == nil {
		if de.Error != "" {
			return de.Error
		}
		if de.Message != "" {
			return de.Message
		}
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return "empty response"
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
