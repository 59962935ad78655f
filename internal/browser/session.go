// Package browser owns the lifecycle of headless browser sessions. One
// session is one browser process plus one tab, scoped to a single request:
// created after the gate admits the request, torn down on every exit path
// before the HTTP response is written. There is no pooling or reuse.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

// ErrLaunchFailed marks a browser that never came up, as opposed to a
// navigation or selector failure inside a healthy session.
var ErrLaunchFailed = errors.New("browser launch failed")

// Options configures how sessions are launched.
type Options struct {
	Headless  bool
	ExecPath  string
	UserAgent string
	// MaxSessions bounds concurrent sessions. 0 means unbounded, the
	// baseline one-session-per-request contract with no admission control.
	MaxSessions int
}

// Manager launches and releases sessions.
type Manager struct {
	opts   Options
	logger *log.Logger
	sem    chan struct{}
}

// NewManager creates a session manager.
func NewManager(opts Options, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.Writer(), "[BROWSER] ", log.LstdFlags)
	}
	m := &Manager{opts: opts, logger: logger}
	if opts.MaxSessions > 0 {
		m.sem = make(chan struct{}, opts.MaxSessions)
	}
	return m
}

// WithSession launches an isolated browser, runs fn with the tab context, and
// guarantees the browser process is terminated on every exit path of fn,
// including errors and timeouts.
func (m *Manager) WithSession(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	id := uuid.NewString()
	started := time.Now()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, m.allocatorOptions()...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	// An empty Run forces the process to start so launch failures are
	// distinguishable from pipeline failures.
	if err := chromedp.Run(tabCtx); err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	m.logger.Printf("session %s opened", id)
	defer func() {
		m.logger.Printf("session %s closed after %s", id, time.Since(started).Round(time.Millisecond))
	}()

	return fn(tabCtx)
}

func (m *Manager) allocatorOptions() []chromedp.ExecAllocatorOption {
	// The hosting container is already isolated, so the browser sandbox is
	// disabled; the dev-shm and GPU flags keep Chrome stable in containers.
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if m.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(m.opts.UserAgent))
	}
	if m.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.opts.ExecPath))
	}
	return opts
}

func (m *Manager) acquire(ctx context.Context) error {
	if m.sem == nil {
		return nil
	}
	select {
	case m.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() {
	if m.sem == nil {
		return
	}
	<-m.sem
}
