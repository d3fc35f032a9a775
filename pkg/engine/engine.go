package engine

import (
	"context"
	"errors"
	"fmt"
	"image"

	"detectbench/internal/entity"
)

const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

var ErrModelNotFound = errors.New("model file not found")

// Engine is safe for concurrent use once constructed.
type Engine interface {
	Detect(ctx context.Context, img image.Image) ([]entity.Box, error)
	Render(img image.Image, boxes []entity.Box) (image.Image, error)
	Close() error
}

type Config struct {
	Backend       string
	ModelPath     string
	LibraryPath   string
	RemoteURL     string
	InputSize     int
	ConfThreshold float32
	IoUThreshold  float32
	Threads       int
}

func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = BackendONNX
	}
	if c.InputSize <= 0 {
		c.InputSize = DefaultInputSize
	}
	if c.ConfThreshold <= 0 {
		c.ConfThreshold = DefaultConfThreshold
	}
	if c.IoUThreshold <= 0 {
		c.IoUThreshold = DefaultIoUThreshold
	}
	return c
}

// LoadError reports a failed construction. It is never cached, so the next
// caller retries from scratch.
type LoadError struct {
	Backend string
	Cause   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s detection engine: %v", e.Backend, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

func (e *LoadError) Retryable() bool {
	return true
}

type Factory func(ctx context.Context) (Engine, error)

func NewFactory(cfg Config) Factory {
	cfg = cfg.withDefaults()
	return func(ctx context.Context) (Engine, error) {
		var (
			eng Engine
			err error
		)
		switch cfg.Backend {
		case BackendONNX:
			eng, err = newONNXEngine(cfg)
		case BackendRemote:
			eng, err = newRemoteEngine(ctx, cfg)
		default:
			err = fmt.Errorf("unsupported backend %q", cfg.Backend)
		}
		if err != nil {
			return nil, &LoadError{Backend: cfg.Backend, Cause: err}
		}
		return eng, nil
	}
}
