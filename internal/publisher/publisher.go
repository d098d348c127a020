package publisher

import (
	"context"

	"postsched/internal/model"
)

// Publisher delivers one post to one external platform.
// A nil error means the platform accepted the post.
//
// Implementations must honor ctx cancellation and must not change the
// post's status; the dispatcher owns that write.
type Publisher interface {
	Publish(ctx context.Context, post model.ScheduledPost) error
}

// Func adapts a plain function to Publisher.
type Func func(ctx context.Context, post model.ScheduledPost) error

func (f Func) Publish(ctx context.Context, post model.ScheduledPost) error { return f(ctx, post) }
