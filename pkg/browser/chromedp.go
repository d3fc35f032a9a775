package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Headless bool
	// ExecPath overrides the browser binary chromedp looks up.
	ExecPath string
	// LookupTimeout bounds element reads when the caller sets no deadline.
	LookupTimeout time.Duration
}

// Browser drives one tab of a Chromium-family browser.
type Browser struct {
	tab           context.Context
	cancelTab     context.CancelFunc
	cancelAlloc   context.CancelFunc
	lookupTimeout time.Duration
}

func New(ctx context.Context, log *logrus.Logger, opts Options) (*Browser, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tab, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Debugf),
		chromedp.WithErrorf(log.Errorf),
	)

	// The first Run starts the browser on the tab context itself, so later
	// per-call timeouts never tear it down.
	if err := chromedp.Run(tab); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	lookup := opts.LookupTimeout
	if lookup <= 0 {
		lookup = 5 * time.Second
	}

	return &Browser{
		tab:           tab,
		cancelTab:     cancelTab,
		cancelAlloc:   cancelAlloc,
		lookupTimeout: lookup,
	}, nil
}

func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(b.tab)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (b *Browser) lookup(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.lookupTimeout)
}

func (b *Browser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (b *Browser) SetInputFile(ctx context.Context, selector, path string) error {
	return b.run(ctx, chromedp.SetUploadFiles(selector, []string{path}, chromedp.ByQuery))
}

func (b *Browser) SelectOption(ctx context.Context, selector, value string) error {
	return b.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (b *Browser) Click(ctx context.Context, selector string) error {
	return b.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (b *Browser) Text(ctx context.Context, selector string) (string, error) {
	ctx, cancel := b.lookup(ctx)
	defer cancel()

	var text string
	if err := b.run(ctx, chromedp.TextContent(selector, &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return text, nil
}

func (b *Browser) Attribute(ctx context.Context, selector, name string) (string, error) {
	ctx, cancel := b.lookup(ctx)
	defer cancel()

	var (
		value string
		ok    bool
	)
	if err := b.run(ctx, chromedp.AttributeValue(selector, name, &value, &ok, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return value, nil
}

func (b *Browser) Close() error {
	b.cancelTab()
	b.cancelAlloc()
	return nil
}
