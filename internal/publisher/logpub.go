package publisher

import (
	"context"

	"postsched/internal/model"
	logx "postsched/pkg/logx"
)

// LogPublisher records the delivery in the log and reports success.
// It is the default mode and stands in for platforms without an API endpoint configured.
type LogPublisher struct {
	Platform Platform
	Log      logx.Logger
}

func (p LogPublisher) Publish(ctx context.Context, post model.ScheduledPost) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Log.Info("post delivered",
		logx.String("platform", p.Platform.String()),
		logx.String("post_id", post.ID),
		logx.String("account_id", post.SocialAccountID),
		logx.String("content", post.Excerpt(60)),
	)
	return nil
}
