package dispatch

import (
	"errors"
	"fmt"

	"postsched/internal/model"
)

// ErrTimeout is recorded when a publisher outlives the per-publish timeout.
var ErrTimeout = errors.New("timeout")

// PersistenceError means the terminal write did not take effect; the post is
// still scheduled and will be selected again by a later tick.
type PersistenceError struct {
	PostID string
	Status model.PostStatus
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist post %s as %s: %v", e.PostID, e.Status, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NoPublisherMessage is the error message recorded for posts whose platform
// has no registered publisher.
func NoPublisherMessage(platform string) string {
	return "no publisher for platform " + platform
}
