package dispatch

import "context"

type startedKey struct{}

// WithStarted returns a copy of ctx carrying fn. Dispatch calls it once the
// attempt for a post has begun; callers use it to order initiation.
func WithStarted(ctx context.Context, fn func()) context.Context {
	return context.WithValue(ctx, startedKey{}, fn)
}

// Started runs the hook installed by WithStarted, if any. Dispatcher
// implementations call it when they begin working on a post.
func Started(ctx context.Context) {
	if fn, ok := ctx.Value(startedKey{}).(func()); ok && fn != nil {
		fn()
	}
}
