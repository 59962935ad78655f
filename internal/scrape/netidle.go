package scrape

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// netIdle counts in-flight network requests and reports when none have been
// active for a full quiet window.
type netIdle struct {
	quiet time.Duration

	mu       sync.Mutex
	inflight int
	lastDone time.Time
}

func newNetIdle(quiet time.Duration) *netIdle {
	return &netIdle{quiet: quiet, lastDone: time.Now()}
}

func (n *netIdle) request() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inflight++
}

func (n *netIdle) finish() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.inflight > 0 {
		n.inflight--
	}
	n.lastDone = time.Now()
}

func (n *netIdle) quietAt(now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.inflight == 0 && now.Sub(n.lastDone) >= n.quiet
}

// wait blocks until the quiet window elapses with nothing in flight, or ctx
// is done.
func (n *netIdle) wait(ctx context.Context) error {
	interval := n.quiet / 4
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			if n.quietAt(now) {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// awaitNetworkIdle resolves once the page has gone a full quiet window with
// no request in flight. A zero window disables the wait, leaving DOM
// readiness as the only load signal.
func awaitNetworkIdle(quiet time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if quiet <= 0 {
			return nil
		}
		gate := newNetIdle(quiet)
		lctx, cancel := context.WithCancel(ctx)
		defer cancel()
		chromedp.ListenTarget(lctx, func(ev interface{}) {
			switch ev.(type) {
			case *network.EventRequestWillBeSent:
				gate.request()
			case *network.EventLoadingFinished, *network.EventLoadingFailed:
				gate.finish()
			}
		})
		return gate.wait(ctx)
	})
}
