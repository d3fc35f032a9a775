package detectionService

import (
	"context"
	"mime/multipart"
	"sync"

	"detectbench/internal/entity"
	"detectbench/pkg/engine"
	"detectbench/pkg/redis"
	"detectbench/pkg/storage"
	"detectbench/pkg/timing"

	"github.com/sirupsen/logrus"
)

type IDetectionService interface {
	// Receive persists and decodes the upload inside the recvPre phase.
	Receive(ctx context.Context, upload Upload, rec *timing.Recorder) (entity.DetectionRequest, error)
	Dispatch(ctx context.Context, req entity.DetectionRequest, rec *timing.Recorder) (entity.DetectionResult, error)
	// Assemble builds the response payload and closes the post phase.
	Assemble(ctx context.Context, result entity.DetectionResult, rec *timing.Recorder) (interface{}, error)
	Close()
}

type EngineProvider interface {
	Get(ctx context.Context) (engine.Engine, error)
}

type Upload struct {
	File      *multipart.FileHeader
	Filename  string
	Strategy  entity.Strategy
	Letterbox *entity.Letterbox
}

type detectionService struct {
	log        *logrus.Logger
	provider   EngineProvider
	layout     *storage.Layout
	mirror     storage.Mirror
	history    redis.IRedis
	background sync.WaitGroup
	bgMu       sync.Mutex
	closed     bool
}

func NewDetectionService(
	log *logrus.Logger,
	provider EngineProvider,
	layout *storage.Layout,
	mirror storage.Mirror,
	history redis.IRedis,
) IDetectionService {
	return &detectionService{
		log:      log,
		provider: provider,
		layout:   layout,
		mirror:   mirror,
		history:  history,
	}
}

// Close refuses new background work, then waits for artifact mirroring and
// history writes still in flight.
func (s *detectionService) Close() {
	s.bgMu.Lock()
	s.closed = true
	s.bgMu.Unlock()

	s.background.Wait()
}

// goBackground runs fn unless Close has begun. It reports whether fn was
// scheduled.
func (s *detectionService) goBackground(fn func(ctx context.Context)) bool {
	s.bgMu.Lock()
	defer s.bgMu.Unlock()

	if s.closed {
		return false
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		fn(ctx)
	}()
	return true
}
