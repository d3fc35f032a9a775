package bench

import (
	"context"
	"errors"
	"sync"
)

var errNoElement = errors.New("no such element")

// fakePage keeps element text and attributes in maps. onClick lets a test
// script what the page shows after each run starts.
type fakePage struct {
	mu        sync.Mutex
	texts     map[string]string
	attrs     map[string]string
	navigated []string
	inputs    []string
	options   []string
	clicks    int
	onClick   func(p *fakePage, n int)
	navErr    error
	// waitMissing makes lookups of absent attributes block until ctx ends,
	// the way a browser waits for an element to appear.
	waitMissing bool
}

func newFakePage() *fakePage {
	return &fakePage{
		texts: map[string]string{},
		attrs: map[string]string{},
	}
}

func (p *fakePage) setText(selector, text string) {
	p.texts[selector] = text
}

func (p *fakePage) setAttr(selector, name, value string) {
	p.attrs[selector+"@"+name] = value
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return p.navErr
}

func (p *fakePage) SetInputFile(_ context.Context, _ string, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append(p.inputs, path)
	return nil
}

func (p *fakePage) SelectOption(_ context.Context, _ string, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.options = append(p.options, value)
	return nil
}

func (p *fakePage) Click(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks++
	if p.onClick != nil {
		p.onClick(p, p.clicks)
	}
	return nil
}

func (p *fakePage) Text(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.texts[selector]
	if !ok {
		return "", errNoElement
	}
	return t, nil
}

func (p *fakePage) Attribute(ctx context.Context, selector, name string) (string, error) {
	p.mu.Lock()
	v, ok := p.attrs[selector+"@"+name]
	wait := p.waitMissing
	p.mu.Unlock()

	if !ok && wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return v, nil
}

func (p *fakePage) Close() error { return nil }
