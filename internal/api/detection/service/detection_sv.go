package detectionService

import (
	"context"
	"fmt"

	"detectbench/internal/api/detection"
	"detectbench/internal/entity"
	"detectbench/pkg/engine"
	"detectbench/pkg/timing"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

func (s *detectionService) Receive(ctx context.Context, upload Upload, rec *timing.Recorder) (entity.DetectionRequest, error) {
	rec.Begin(timing.PhaseRecvPre)

	src, err := upload.File.Open()
	if err != nil {
		return entity.DetectionRequest{}, fmt.Errorf("%w: %w", detection.ErrSaveUpload, err)
	}
	defer src.Close()

	savedPath, err := s.layout.SaveUpload(src, upload.Filename)
	if err != nil {
		return entity.DetectionRequest{}, fmt.Errorf("%w: %w", detection.ErrSaveUpload, err)
	}

	img, err := imaging.Open(savedPath, imaging.AutoOrientation(true))
	if err != nil {
		return entity.DetectionRequest{}, fmt.Errorf("%w: %w", detection.ErrInvalidImage, err)
	}

	return entity.DetectionRequest{
		Image:          img,
		Strategy:       upload.Strategy,
		SourceFilename: upload.Filename,
		SourcePath:     savedPath,
		Letterbox:      upload.Letterbox,
	}, nil
}

func (s *detectionService) Dispatch(ctx context.Context, req entity.DetectionRequest, rec *timing.Recorder) (entity.DetectionResult, error) {
	switch req.Strategy {
	case entity.StrategyC:
		rec.End()
		return entity.NoOpResult{Message: detection.NoOpMessage}, nil
	case entity.StrategyA:
		return s.dispatchRendered(ctx, req, rec)
	case entity.StrategyB:
		return s.dispatchBoxes(ctx, req, rec)
	default:
		return nil, detection.ErrUnknownStrategy
	}
}

func (s *detectionService) detect(ctx context.Context, req entity.DetectionRequest, rec *timing.Recorder) ([]entity.Box, engine.Engine, error) {
	rec.Begin(timing.PhaseLoad)
	eng, err := s.provider.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", detection.ErrEngineUnavailable, err)
	}

	rec.Begin(timing.PhaseInfer)
	boxes, err := eng.Detect(ctx, req.Image)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", detection.ErrInferenceFailed, err)
	}

	rec.Begin(timing.PhasePost)
	return boxes, eng, nil
}

func (s *detectionService) dispatchRendered(ctx context.Context, req entity.DetectionRequest, rec *timing.Recorder) (entity.DetectionResult, error) {
	boxes, eng, err := s.detect(ctx, req, rec)
	if err != nil {
		return nil, err
	}

	stopRender := rec.Track(timing.SubRender)
	annotated, err := eng.Render(req.Image, boxes)
	stopRender()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", detection.ErrRenderFailed, err)
	}

	dst := s.layout.DetectedPath(req.SourceFilename)
	stopEncode := rec.Track(timing.SubEncode)
	err = imaging.Save(annotated, dst, imaging.JPEGQuality(95))
	stopEncode()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", detection.ErrRenderFailed, err)
	}

	s.log.WithFields(logrus.Fields{
		"strategy": entity.StrategyA.String(),
		"boxes":    len(boxes),
		"output":   dst,
	}).Debug("Rendered detections")

	return entity.RenderedResult{
		OriginalPath:  req.SourcePath,
		AnnotatedPath: dst,
	}, nil
}

func (s *detectionService) dispatchBoxes(ctx context.Context, req entity.DetectionRequest, rec *timing.Recorder) (entity.DetectionResult, error) {
	boxes, _, err := s.detect(ctx, req, rec)
	if err != nil {
		return nil, err
	}

	out := make([]entity.Box, 0, len(boxes))
	for _, b := range boxes {
		if req.Letterbox != nil {
			b = req.Letterbox.Unmap(b)
		}
		out = append(out, b)
	}

	return entity.BoxListResult{
		OriginalPath: req.SourcePath,
		Boxes:        out,
	}, nil
}
