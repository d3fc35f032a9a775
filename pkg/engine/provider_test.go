package engine

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"detectbench/internal/entity"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	closed atomic.Bool
}

func (s *stubEngine) Detect(context.Context, image.Image) ([]entity.Box, error) { return nil, nil }

func (s *stubEngine) Render(img image.Image, _ []entity.Box) (image.Image, error) { return img, nil }

func (s *stubEngine) Close() error {
	s.closed.Store(true)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestProviderConstructsOnceUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	factory := func(context.Context) (Engine, error) {
		calls.Add(1)
		<-release
		return &stubEngine{}, nil
	}
	p := NewProvider(factory, quietLogger())

	const callers = 16
	var wg sync.WaitGroup
	got := make([]Engine, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			eng, err := p.Get(context.Background())
			assert.NoError(t, err)
			got[i] = eng
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, eng := range got {
		assert.Same(t, got[0], eng)
	}
	assert.True(t, p.Loaded())
}

func TestProviderRetriesAfterFailure(t *testing.T) {
	var calls atomic.Int32
	factory := func(context.Context) (Engine, error) {
		if calls.Add(1) == 1 {
			return nil, &LoadError{Backend: BackendONNX, Cause: ErrModelNotFound}
		}
		return &stubEngine{}, nil
	}
	p := NewProvider(factory, quietLogger())

	_, err := p.Get(context.Background())
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.True(t, loadErr.Retryable())
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.False(t, p.Loaded())

	eng, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, eng)
	assert.Equal(t, int64(2), p.Attempts())
}

func TestProviderWrapsPlainFactoryErrors(t *testing.T) {
	p := NewProvider(func(context.Context) (Engine, error) {
		return nil, errors.New("boom")
	}, quietLogger())

	_, err := p.Get(context.Background())
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestProviderGetHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	p := NewProvider(func(context.Context) (Engine, error) {
		<-block
		return &stubEngine{}, nil
	}, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProviderClose(t *testing.T) {
	stub := &stubEngine{}
	p := NewProvider(func(context.Context) (Engine, error) { return stub, nil }, quietLogger())

	_, err := p.Get(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Close())

	assert.True(t, stub.closed.Load())
	assert.False(t, p.Loaded())
	assert.NoError(t, p.Close())
}

func TestNewFactoryMissingModel(t *testing.T) {
	factory := NewFactory(Config{Backend: BackendONNX, ModelPath: "/nonexistent/yolov8s.onnx"})

	_, err := factory(context.Background())
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestNewFactoryUnknownBackend(t *testing.T) {
	_, err := NewFactory(Config{Backend: "tflite"})(context.Background())
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "tflite", loadErr.Backend)
}
