package detectionService

import (
	"context"
	"time"

	"detectbench/internal/api/detection"
	"detectbench/internal/entity"
	contextPkg "detectbench/pkg/context"
	"detectbench/pkg/redis"
	"detectbench/pkg/storage"
	"detectbench/pkg/timing"

	"github.com/sirupsen/logrus"
)

const backgroundTimeout = 30 * time.Second

// Assemble turns a result into its wire payload. The post phase ends once the
// payload is built, before it is serialized.
func (s *detectionService) Assemble(ctx context.Context, result entity.DetectionResult, rec *timing.Recorder) (interface{}, error) {
	switch r := result.(type) {
	case entity.NoOpResult:
		rec.End()
		s.logPhases(ctx, entity.StrategyC, rec.Phases())
		return detection.NoOpResponse{
			Strategy: entity.StrategyC.String(),
			Msg:      r.Message,
		}, nil

	case entity.RenderedResult:
		stop := rec.Track(timing.SubAssemble)
		payload := detection.RenderedResponse{
			Strategy: entity.StrategyA.String(),
			Original: s.layout.Relative(r.OriginalPath),
			Detected: s.layout.Relative(r.AnnotatedPath),
		}
		stop()
		rec.End()

		phases := rec.Phases()
		payload.Timings = timingsOf(phases)
		s.logPhases(ctx, entity.StrategyA, phases)
		s.record(entity.StrategyA, r.OriginalPath, payload.Timings)
		s.mirrorArtifact(r.AnnotatedPath)
		return payload, nil

	case entity.BoxListResult:
		stop := rec.Track(timing.SubAssemble)
		boxes := r.Boxes
		if boxes == nil {
			boxes = []entity.Box{}
		}
		payload := detection.BoxListResponse{
			Strategy: entity.StrategyB.String(),
			Original: s.layout.Relative(r.OriginalPath),
			Boxes:    boxes,
		}
		stop()
		rec.End()

		phases := rec.Phases()
		payload.Timings = timingsOf(phases)
		s.logPhases(ctx, entity.StrategyB, phases)
		s.record(entity.StrategyB, r.OriginalPath, payload.Timings)
		return payload, nil

	default:
		return nil, detection.ErrInternalServerError
	}
}

func timingsOf(p timing.Phases) detection.Timings {
	return detection.Timings{
		ServerRecvPre: timing.Seconds(p.Get(timing.PhaseRecvPre)),
		ServerInfer:   timing.Seconds(p.Get(timing.PhaseInfer)),
		ServerPost:    timing.Seconds(p.Get(timing.PhasePost)),
	}
}

func (s *detectionService) logPhases(ctx context.Context, strategy entity.Strategy, p timing.Phases) {
	s.log.WithFields(logrus.Fields{
		"request_id": contextPkg.GetRequestID(ctx),
		"strategy":   strategy.String(),
		"recv_pre":   p.Get(timing.PhaseRecvPre).String(),
		"load":       p.Get(timing.PhaseLoad).String(),
		"infer":      p.Get(timing.PhaseInfer).String(),
		"post":       p.Get(timing.PhasePost).String(),
		"render":     p.Sub(timing.SubRender).String(),
		"encode":     p.Sub(timing.SubEncode).String(),
	}).Debug("Request phases")
}

func (s *detectionService) record(strategy entity.Strategy, source string, t detection.Timings) {
	if s.history == nil {
		return
	}

	entry := redis.TimingEntry{
		Strategy:   strategy.String(),
		Filename:   storage.BaseName(source),
		RecvPre:    t.ServerRecvPre,
		Infer:      t.ServerInfer,
		Post:       t.ServerPost,
		RecordedAt: time.Now(),
	}

	scheduled := s.goBackground(func(ctx context.Context) {
		if err := s.history.PushTiming(ctx, entry); err != nil {
			s.log.WithField("error", err.Error()).Warn("Failed to record timing history")
		}
	})
	if !scheduled {
		s.log.WithField("strategy", entry.Strategy).Debug("Shutting down, timing not recorded")
	}
}

func (s *detectionService) mirrorArtifact(localPath string) {
	if s.mirror == nil || !s.mirror.Enabled() {
		return
	}

	scheduled := s.goBackground(func(ctx context.Context) {
		location, err := s.mirror.Upload(ctx, localPath, "")
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"error": err.Error(),
				"file":  localPath,
			}).Warn("Failed to mirror artifact")
			return
		}
		s.log.WithField("location", location).Debug("Artifact mirrored")
	})
	if !scheduled {
		s.log.WithField("file", localPath).Debug("Shutting down, artifact not mirrored")
	}
}
