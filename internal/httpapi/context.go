package httpapi

import (
	"context"
)

// serverBaseCtx is cancelled when the process shuts down; forced reloads wait
// on it as well as on the request.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers.
// A nil ctx restores Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts derives from req and additionally cancels when base is done.
// The returned cancel func must be called when the handler ends.
func joinContexts(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(req)
	stop := context.AfterFunc(base, func() { cancel(context.Cause(base)) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
