package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"postsched/internal/model"
	logx "postsched/pkg/logx"
)

type staticAccounts map[string]model.SocialAccount

func (s staticAccounts) GetSocialAccount(ctx context.Context, id string) (model.SocialAccount, error) {
	a, ok := s[id]
	if !ok {
		return model.SocialAccount{}, errors.New("not found")
	}
	return a, nil
}

func testPost() model.ScheduledPost {
	return model.ScheduledPost{
		ID:              "post-1",
		SocialAccountID: "acc-1",
		Platform:        "facebook",
		Content:         "launch day",
		ScheduledAt:     time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		Status:          model.StatusScheduled,
	}
}

func TestHTTPPublisherSuccess(t *testing.T) {
	var gotAuth, gotKey string
	var gotBody deliveryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	accounts := staticAccounts{"acc-1": {ID: "acc-1", PageID: "page-9", AccessToken: "tok"}}
	pub := NewHTTPPublisher(Facebook, srv.URL, srv.Client(), nil, accounts, logx.Nop())
	if err := pub.Publish(context.Background(), testPost()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotKey != "post-1" {
		t.Fatalf("Idempotency-Key = %q", gotKey)
	}
	if gotBody.PageID != "page-9" || gotBody.Content != "launch day" {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestHTTPPublisherErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, want: "rate limited"},
		{name: "json error", status: http.StatusBadRequest, body: `{"error":"duplicate content"}`, want: "facebook: HTTP 400: duplicate content"},
		{name: "plain body", status: http.StatusBadGateway, body: "upstream down", want: "facebook: HTTP 502: upstream down"},
		{name: "empty body", status: http.StatusInternalServerError, want: "facebook: HTTP 500: empty response"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			accounts := staticAccounts{"acc-1": {ID: "acc-1", AccessToken: "tok"}}
			pub := NewHTTPPublisher(Facebook, srv.URL, srv.Client(), nil, accounts, logx.Nop())
			err := pub.Publish(context.Background(), testPost())
			if err == nil || err.Error() != tt.want {
				t.Fatalf("Publish err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestHTTPPublisherAccountChecks(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	tests := []struct {
		name     string
		accounts staticAccounts
		want     string
	}{
		{name: "missing account", accounts: staticAccounts{}, want: "load social account"},
		{name: "no token", accounts: staticAccounts{"acc-1": {ID: "acc-1"}}, want: "no access token"},
		{name: "expired", accounts: staticAccounts{"acc-1": {ID: "acc-1", AccessToken: "t", TokenExpiresAt: &past}}, want: "expired"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			pub := NewHTTPPublisher(Facebook, "http://127.0.0.1:1", nil, nil, tt.accounts, logx.Nop())
			err := pub.Publish(context.Background(), testPost())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Publish err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestHTTPPublisherHonorsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	accounts := staticAccounts{"acc-1": {ID: "acc-1", AccessToken: "tok"}}
	pub := NewHTTPPublisher(Facebook, srv.URL, srv.Client(), nil, accounts, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := pub.Publish(ctx, testPost()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Publish err = %v, want deadline exceeded", err)
	}
}

func TestHTTPPublisherPacingBeyondDeadline(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	lim := rate.NewLimiter(rate.Every(time.Hour), 1)
	lim.Allow() // spend the only token
	accounts := staticAccounts{"acc-1": {ID: "acc-1", AccessToken: "tok"}}
	pub := NewHTTPPublisher(Facebook, srv.URL, srv.Client(), lim, accounts, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := pub.Publish(ctx, testPost())
	if !errors.Is(err, ErrPacing) {
		t.Fatalf("err = %v, want ErrPacing", err)
	}
	if hits != 0 {
		t.Fatalf("request sent despite pacing: %d", hits)
	}

	cancel()
	if err := pub.Publish(ctx, testPost()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
