package timingsService

import (
	"context"
	"fmt"

	"detectbench/internal/api/timings"
	"detectbench/internal/entity"
	"detectbench/pkg/redis"

	"github.com/sirupsen/logrus"
)

type ITimingsService interface {
	History(ctx context.Context, strategy entity.Strategy, limit int) (*timings.HistoryResponse, error)
}

type timingsService struct {
	log     *logrus.Logger
	history redis.IRedis
}

func New(log *logrus.Logger, history redis.IRedis) ITimingsService {
	return &timingsService{
		log:     log,
		history: history,
	}
}

func (s *timingsService) History(ctx context.Context, strategy entity.Strategy, limit int) (*timings.HistoryResponse, error) {
	summary, err := s.history.Summary(ctx, strategy.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", timings.ErrHistoryDown, err)
	}

	resp := &timings.HistoryResponse{TimingSummary: summary}
	if limit > 0 {
		recent, err := s.history.RecentTimings(ctx, strategy.String(), limit)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", timings.ErrHistoryDown, err)
		}
		resp.Recent = recent
	}
	return resp, nil
}
