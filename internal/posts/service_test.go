package posts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"postsched/internal/model"
	"postsched/internal/storage"
	logx "postsched/pkg/logx"
)

var t0 = time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, storage.Store, *time.Time) {
	t.Helper()
	st := storage.NewMemory()
	now := t0
	seq := 0
	svc := New(st, logx.Nop(),
		WithClock(func() time.Time { return now }),
		WithIDs(func() string { seq++; return fmt.Sprintf("id-%d", seq) }),
	)
	return svc, st, &now
}

func link(t *testing.T, svc *Service, owner int64, platform string) model.SocialAccount {
	t.Helper()
	a, err := svc.LinkAccount(context.Background(), owner, LinkInput{Platform: platform, AccessToken: "tok"})
	if err != nil {
		t.Fatalf("LinkAccount: %v", err)
	}
	return a
}

func TestCreate(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	acc := link(t, svc, 1, "linkedin")

	p, err := svc.Create(ctx, 1, CreateInput{SocialAccountID: acc.ID, Content: "hi", ScheduledAt: t0.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Platform != "linkedin" || p.Status != model.StatusScheduled || p.OwnerID != 1 {
		t.Fatalf("post = %+v", p)
	}

	tests := []struct {
		name  string
		owner int64
		in    CreateInput
		want  error
	}{
		{name: "foreign account", owner: 2, in: CreateInput{SocialAccountID: acc.ID, Content: "x", ScheduledAt: t0.Add(time.Hour)}, want: ErrNotFound},
		{name: "missing account", owner: 1, in: CreateInput{SocialAccountID: "nope", Content: "x", ScheduledAt: t0.Add(time.Hour)}, want: ErrNotFound},
		{name: "now", owner: 1, in: CreateInput{SocialAccountID: acc.ID, Content: "x", ScheduledAt: t0}, want: ErrNotInFuture},
		{name: "past", owner: 1, in: CreateInput{SocialAccountID: acc.ID, Content: "x", ScheduledAt: t0.Add(-time.Second)}, want: ErrNotInFuture},
		{name: "empty content", owner: 1, in: CreateInput{SocialAccountID: acc.ID, Content: "  ", ScheduledAt: t0.Add(time.Hour)}, want: ErrEmptyContent},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tt.owner, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("Create err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUpdateAndCancel(t *testing.T) {
	svc, st, now := newService(t)
	ctx := context.Background()
	acc := link(t, svc, 1, "facebook")
	p, _ := svc.Create(ctx, 1, CreateInput{SocialAccountID: acc.ID, Content: "v1", ScheduledAt: t0.Add(time.Hour)})

	content := "v2"
	later := t0.Add(3 * time.Hour)
	got, err := svc.Update(ctx, 1, p.ID, UpdateInput{Content: &content, ScheduledAt: &later})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Content != "v2" || !got.ScheduledAt.Equal(later) {
		t.Fatalf("updated = %+v", got)
	}

	past := t0.Add(-time.Minute)
	if _, err := svc.Update(ctx, 1, p.ID, UpdateInput{ScheduledAt: &past}); !errors.Is(err, ErrNotInFuture) {
		t.Fatalf("Update past err = %v", err)
	}
	if _, err := svc.Update(ctx, 2, p.ID, UpdateInput{Content: &content}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update foreign err = %v", err)
	}

	*now = t0.Add(4 * time.Hour)
	if err := st.Persist(ctx, p.ID, model.StatusPublished, ""); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if _, err := svc.Update(ctx, 1, p.ID, UpdateInput{Content: &content}); !errors.Is(err, ErrNotEditable) {
		t.Fatalf("Update published err = %v", err)
	}
	if err := svc.Cancel(ctx, 1, p.ID); !errors.Is(err, ErrNotEditable) {
		t.Fatalf("Cancel published err = %v", err)
	}

	p2, _ := svc.Create(ctx, 1, CreateInput{SocialAccountID: acc.ID, Content: "x", ScheduledAt: (*now).Add(time.Hour)})
	if err := svc.Cancel(ctx, 1, p2.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := svc.Get(ctx, 1, p2.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cancelled post still present: %v", err)
	}
}

func TestLinkAccount(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	link(t, svc, 1, "reddit")

	if _, err := svc.LinkAccount(ctx, 1, LinkInput{Platform: "reddit", AccessToken: "t"}); !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("duplicate link err = %v", err)
	}
	if _, err := svc.LinkAccount(ctx, 2, LinkInput{Platform: "reddit", AccessToken: "t"}); err != nil {
		t.Fatalf("other owner link: %v", err)
	}
	if _, err := svc.LinkAccount(ctx, 1, LinkInput{Platform: "myspace", AccessToken: "t"}); !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("unsupported err = %v", err)
	}
	if _, err := svc.LinkAccount(ctx, 1, LinkInput{Platform: "quora"}); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("missing token err = %v", err)
	}
	accs, err := svc.ListAccounts(ctx, 1)
	if err != nil || len(accs) != 1 {
		t.Fatalf("ListAccounts = %v, %v", accs, err)
	}
}

func TestUnlinkRefusedWhileScheduled(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	acc := link(t, svc, 1, "youtube")
	p, _ := svc.Create(ctx, 1, CreateInput{SocialAccountID: acc.ID, Content: "x", ScheduledAt: t0.Add(time.Hour)})

	if err := svc.UnlinkAccount(ctx, 1, acc.ID); !errors.Is(err, ErrAccountInUse) {
		t.Fatalf("Unlink err = %v, want ErrAccountInUse", err)
	}
	if err := svc.Cancel(ctx, 1, p.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := svc.UnlinkAccount(ctx, 1, acc.ID); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
}

func TestSubMillisecondFutureRejected(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	acc := link(t, svc, 1, "facebook")

	// Stored times carry millisecond precision; this one would land on t0.
	almost := t0.Add(500 * time.Microsecond)
	if _, err := svc.Create(ctx, 1, CreateInput{SocialAccountID: acc.ID, Content: "x", ScheduledAt: almost}); !errors.Is(err, ErrNotInFuture) {
		t.Fatalf("Create err = %v, want %v", err, ErrNotInFuture)
	}

	p, err := svc.Create(ctx, 1, CreateInput{SocialAccountID: acc.ID, Content: "x", ScheduledAt: t0.Add(time.Millisecond + 500*time.Microsecond)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if want := t0.Add(time.Millisecond); !p.ScheduledAt.Equal(want) {
		t.Fatalf("scheduled_at = %v, want %v", p.ScheduledAt, want)
	}
	if _, err := svc.Update(ctx, 1, p.ID, UpdateInput{ScheduledAt: &almost}); !errors.Is(err, ErrNotInFuture) {
		t.Fatalf("Update err = %v, want %v", err, ErrNotInFuture)
	}
}
