package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const loadKey = "engine"

// Provider hands out one lazily constructed Engine. Concurrent first callers
// share a single construction attempt; a failed attempt is not remembered.
type Provider struct {
	factory  Factory
	log      *logrus.Logger
	mu       sync.RWMutex
	engine   Engine
	group    singleflight.Group
	attempts atomic.Int64
}

func NewProvider(factory Factory, log *logrus.Logger) *Provider {
	return &Provider{
		factory: factory,
		log:     log,
	}
}

func (p *Provider) Get(ctx context.Context) (Engine, error) {
	if eng := p.current(); eng != nil {
		return eng, nil
	}

	ch := p.group.DoChan(loadKey, func() (interface{}, error) {
		if eng := p.current(); eng != nil {
			return eng, nil
		}

		p.attempts.Add(1)
		start := time.Now()
		eng, err := p.factory(context.Background())
		if err != nil {
			p.log.WithFields(logrus.Fields{
				"error":   err.Error(),
				"attempt": p.attempts.Load(),
			}).Error("Detection engine construction failed")
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				err = &LoadError{Backend: "unknown", Cause: err}
			}
			return nil, err
		}

		p.mu.Lock()
		p.engine = eng
		p.mu.Unlock()

		p.log.WithFields(logrus.Fields{
			"latency_ms": time.Since(start).Milliseconds(),
		}).Info("Detection engine ready")
		return eng, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Engine), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Provider) Loaded() bool {
	return p.current() != nil
}

// Attempts is the number of construction attempts made so far.
func (p *Provider) Attempts() int64 {
	return p.attempts.Load()
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.engine == nil {
		return nil
	}
	err := p.engine.Close()
	p.engine = nil
	return err
}

func (p *Provider) current() Engine {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.engine
}
