package bench

import "context"

const (
	FileInputSelector      = "#fileInput"
	StrategySelectSelector = "#strategySelect"
	StartButtonSelector    = "#startBtn"
)

// Page is the slice of a browser tab the driver needs. Selectors are CSS.
type Page interface {
	Navigate(ctx context.Context, url string) error
	SetInputFile(ctx context.Context, selector, path string) error
	SelectOption(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// Text returns the element's text content. A missing element is an error.
	Text(ctx context.Context, selector string) (string, error)
	// Attribute returns "" when the element exists but lacks the attribute.
	Attribute(ctx context.Context, selector, name string) (string, error)
	Close() error
}

func resultLinkSelector(key string) string {
	return "#download-" + key + "-result"
}

func resultImageSelector(key string) string {
	return "#detected-" + key + "-image"
}
