package render

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"askmydoc/internal/apperr"
)

// Session is one browser tab. Close must release every resource Launch acquired.
type Session interface {
	Load(ctx context.Context, url string) (string, error)
	Close() error
}

type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Renderer loads a page in a fresh browser session and returns the realized DOM.
type Renderer struct {
	launcher Launcher
	timeout  time.Duration
}

func NewRenderer(l Launcher, timeout time.Duration) *Renderer {
	return &Renderer{launcher: l, timeout: timeout}
}

// Render fails with ErrRenderTimeout when navigation does not settle in time and with
// ErrFetch for any other browser failure. The session is closed on every path.
func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	sess, err := r.launcher.Launch(ctx)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrFetch, "launch browser", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			slog.WarnContext(ctx, "failed to close browser session", "error", cerr)
		}
	}()

	loadCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	html, err := sess.Load(loadCtx, url)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(loadCtx.Err(), context.DeadlineExceeded) {
			slog.WarnContext(ctx, "page render timed out", "url", url, "timeout", r.timeout)
			return "", apperr.Wrap(apperr.ErrRenderTimeout, "render "+url, err)
		}
		return "", apperr.Wrap(apperr.ErrFetch, "render "+url, err)
	}

	slog.InfoContext(ctx, "page rendered", "url", url, "bytes", len(html), "duration", time.Since(start))
	return html, nil
}
