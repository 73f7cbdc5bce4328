// Package browser drives a headless Chrome against the warm editor instance.
//
// Opening the workspace and quick-opening a source file is what triggers the
// code-intelligence extension's lazy activation; the extension does nothing
// until a document is visible in an editor.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/ternarybob/prewarm/internal/config"
	"github.com/ternarybob/prewarm/internal/logger"
	"github.com/ternarybob/prewarm/pkg/readiness"
)

// Session is a headless Chrome session pointed at the warm editor.
type Session struct {
	cfg         *config.Config
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// New launches a headless Chrome suitable for container environments.
func New(cfg *config.Config) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 800),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	timeout := config.Duration(cfg.Browser.Timeout, 120*time.Second)
	ctx, cancel = context.WithTimeout(ctx, timeout)

	return &Session{
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}, nil
}

// Close tears down the browser.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// Open loads the workspace in the editor UI and waits for the workbench to
// render.
func (s *Session) Open() error {
	log := logger.GetLogger()

	target := fmt.Sprintf("%s/?folder=%s", s.cfg.EditorURL(), url.QueryEscape(s.cfg.Editor.Workspace))
	log.Info().Str("url", target).Msg("Opening workspace in headless browser")

	if err := chromedp.Run(s.ctx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body"),
		chromedp.WaitVisible(".monaco-workbench", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}

	return nil
}

// QuickOpen opens a workspace file through the editor's quick-open
// affordance (ctrl+P, type the path, enter). It must tolerate unknown UI
// state: it is fired once on activation and possibly re-fired by the
// readiness poller's stall recovery, and a stray quick-open box left over
// from a previous attempt is dismissed first.
func (s *Session) QuickOpen(ctx context.Context, file string) error {
	log := logger.GetLogger()
	log.Info().Str("file", file).Msg("Quick-opening file to trigger extension activation")

	runCtx, cancel := mergeDeadline(s.ctx, ctx)
	defer cancel()

	const quickInput = ".quick-input-box input"

	if err := chromedp.Run(runCtx,
		// Dismiss any leftover quick-open widget, then summon a fresh one.
		chromedp.KeyEvent(kb.Escape),
		chromedp.Evaluate(quickOpenKeystroke, nil),
		chromedp.WaitVisible(quickInput, chromedp.ByQuery),
		chromedp.SendKeys(quickInput, file, chromedp.ByQuery),
		chromedp.SendKeys(quickInput, kb.Enter, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("quick-open %s: %w", file, err)
	}

	return nil
}

// Trigger adapts QuickOpen to the readiness poller's trigger contract.
func (s *Session) Trigger() readiness.Trigger {
	return readiness.TriggerFunc(func(ctx context.Context) error {
		return s.QuickOpen(ctx, s.cfg.Browser.OpenFile)
	})
}

// quickOpenKeystroke dispatches ctrl+P on the workbench. The workbench
// handles DOM-level keydown, so a synthetic event is enough to summon the
// quick-open widget without cdp-level modifier plumbing.
const quickOpenKeystroke = `document.body.dispatchEvent(new KeyboardEvent('keydown', {
	key: 'p', code: 'KeyP', keyCode: 80, ctrlKey: true, bubbles: true
}))`

// mergeDeadline derives a context from the browser session that also honors
// the caller's cancellation.
func mergeDeadline(sessionCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(sessionCtx)
	stop := context.AfterFunc(callerCtx, cancel)
	return ctx, func() { stop(); cancel() }
}
