package chrome

import (
	"context"
	"sync"
	"sync/atomic"

	"askmydoc/internal/render"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Launcher starts a headless Chrome per session, or attaches to a remote DevTools
// endpoint when wsURL is set.
type Launcher struct {
	wsURL    string
	execPath string
}

func NewLauncher(wsURL, execPath string) *Launcher {
	return &Launcher{wsURL: wsURL, execPath: execPath}
}

func (l *Launcher) Launch(ctx context.Context) (render.Session, error) {
	// The browser outlives the caller's context until Close; Load is bounded separately.
	base := context.WithoutCancel(ctx)

	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if l.wsURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(base, l.wsURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.DisableGPU,
			chromedp.NoSandbox,
		)
		if l.execPath != "" {
			opts = append(opts, chromedp.ExecPath(l.execPath))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(base, opts...)
	}

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	// Starts the browser (or attaches) so launch failures surface here
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, err
	}

	return &session{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc}, nil
}

type session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	closeOnce   sync.Once
	closeErr    error
}

// Load navigates and waits until the page reports network idle, then returns the DOM.
func (s *session) Load(ctx context.Context, url string) (string, error) {
	var navigating atomic.Bool
	idle := make(chan struct{})
	var idleOnce sync.Once

	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok {
			return
		}
		switch e.Name {
		case "init":
			navigating.Store(true)
		case "networkIdle":
			if navigating.Load() {
				idleOnce.Do(func() { close(idle) })
			}
		}
	})

	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(runCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.Navigate(url),
		chromedp.ActionFunc(func(c context.Context) error {
			select {
			case <-idle:
				return nil
			case <-c.Done():
				return c.Err()
			}
		}),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return html, nil
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancelTab()
		s.cancelAlloc()
	})
	return s.closeErr
}
