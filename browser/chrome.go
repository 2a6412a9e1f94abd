package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

const (
	scrollToBottomJS = `window.scrollTo(0, document.body.scrollHeight)`
	pageHeightJS     = `document.body.scrollHeight`
	readyStateJS     = `document.readyState`
)

// DefaultOpTimeout bounds a single browser operation when ChromeConfig.OpTimeout is unset.
const DefaultOpTimeout = 30 * time.Second

// ChromeConfig configures the chromedp allocator.
type ChromeConfig struct {
	Headless     bool   `mapstructure:"headless"`
	UserAgent    string `mapstructure:"user_agent"`
	ExecPath     string `mapstructure:"exec_path"`
	WindowWidth  int    `mapstructure:"window_width"`
	WindowHeight int    `mapstructure:"window_height"`

	// OpTimeout caps every individual browser call, including navigation.
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// Chrome is a Driver backed by a chromedp browser session.
type Chrome struct {
	ctx         context.Context
	allocCancel context.CancelFunc
	opTimeout   time.Duration
	quitOnce    sync.Once
	quitErr     error
}

var _ Driver = (*Chrome)(nil)

// NewChrome starts a browser. The session lives until Quit is called or parent is cancelled.
func NewChrome(parent context.Context, cfg ChromeConfig) (*Chrome, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// An empty Run forces the browser process to start so launch errors surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &Chrome{ctx: browserCtx, allocCancel: allocCancel, opTimeout: opTimeout}, nil
}

// ChromeLauncher returns a Launcher that starts a new Chrome session per call.
func ChromeLauncher(cfg ChromeConfig) Launcher {
	return func(ctx context.Context) (Driver, error) {
		return NewChrome(ctx, cfg)
	}
}

// run executes actions on the browser tab, bounded by the caller's context and
// by the per-operation timeout, whichever ends first.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := c.opContext(ctx)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// opContext derives a context from the browser session that is cancelled with
// ctx and expires at the earlier of ctx's deadline and now+opTimeout.
func (c *Chrome) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(c.ctx)

	deadline, ok := ctx.Deadline()
	if c.opTimeout > 0 {
		if limit := time.Now().Add(c.opTimeout); !ok || limit.Before(deadline) {
			deadline, ok = limit, true
		}
	}
	cancelDeadline := context.CancelFunc(func() {})
	if ok {
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
	}
	stop := context.AfterFunc(ctx, cancel)

	return runCtx, func() {
		stop()
		cancelDeadline()
		cancel()
	}
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) Title(ctx context.Context) (string, error) {
	var title string
	if err := c.run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

func (c *Chrome) Find(ctx context.Context, sel Selector) (Element, error) {
	return first(c.FindAll(ctx, sel))(sel)
}

func (c *Chrome) FindAll(ctx context.Context, sel Selector) ([]Element, error) {
	return c.nodes(ctx, sel, nil)
}

func (c *Chrome) ScrollToBottom(ctx context.Context) error {
	return c.run(ctx, chromedp.Evaluate(scrollToBottomJS, nil))
}

func (c *Chrome) PageHeight(ctx context.Context) (int64, error) {
	var height int64
	if err := c.run(ctx, chromedp.Evaluate(pageHeightJS, &height)); err != nil {
		return 0, err
	}
	return height, nil
}

func (c *Chrome) ReadyState(ctx context.Context) (string, error) {
	var state string
	if err := c.run(ctx, chromedp.Evaluate(readyStateJS, &state)); err != nil {
		return "", err
	}
	return state, nil
}

func (c *Chrome) Click(ctx context.Context, el Element) error {
	ce, ok := el.(*chromeElement)
	if !ok {
		return fmt.Errorf("click: element of type %T does not belong to this session", el)
	}
	return c.run(ctx, chromedp.MouseClickNode(ce.node))
}

// Quit closes the browser. Safe to call more than once.
func (c *Chrome) Quit() error {
	c.quitOnce.Do(func() {
		c.quitErr = chromedp.Cancel(c.ctx)
		c.allocCancel()
	})
	return c.quitErr
}

// nodes resolves sel against the document, or below parent when it is non-nil.
func (c *Chrome) nodes(ctx context.Context, sel Selector, parent *cdp.Node) ([]Element, error) {
	var (
		found  []*cdp.Node
		action chromedp.Action
	)

	if query, ok := sel.CSSQuery(); ok {
		opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
		if parent != nil {
			opts = append(opts, chromedp.FromNode(parent))
		}
		action = chromedp.Nodes(query, &found, opts...)
	} else {
		// BySearch does not support FromNode.
		if parent != nil {
			return nil, fmt.Errorf("%s below an element: %w", sel, ErrUnsupportedSelector)
		}
		action = chromedp.Nodes(sel.Value, &found, chromedp.BySearch, chromedp.AtLeast(0))
	}

	if err := c.run(ctx, action); err != nil {
		return nil, fmt.Errorf("locate %s: %w", sel, err)
	}

	elements := make([]Element, 0, len(found))
	for _, n := range found {
		elements = append(elements, &chromeElement{chrome: c, node: n})
	}
	return elements, nil
}

type chromeElement struct {
	chrome *Chrome
	node   *cdp.Node
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	var text string
	err := e.chrome.run(ctx, chromedp.Text([]cdp.NodeID{e.node.NodeID}, &text, chromedp.ByNodeID))
	if err != nil {
		return "", err
	}
	return text, nil
}

func (e *chromeElement) Attribute(_ context.Context, name string) (string, bool, error) {
	value, ok := e.node.Attribute(name)
	return value, ok, nil
}

func (e *chromeElement) Find(ctx context.Context, sel Selector) (Element, error) {
	return first(e.FindAll(ctx, sel))(sel)
}

func (e *chromeElement) FindAll(ctx context.Context, sel Selector) ([]Element, error) {
	return e.chrome.nodes(ctx, sel, e.node)
}

// first adapts a FindAll result into a Find result.
func first(elements []Element, err error) func(Selector) (Element, error) {
	return func(sel Selector) (Element, error) {
		if err != nil {
			return nil, err
		}
		if len(elements) == 0 {
			return nil, fmt.Errorf("%s: %w", sel, ErrNotFound)
		}
		return elements[0], nil
	}
}
