package timings

import "detectbench/pkg/redis"

type HistoryQuery struct {
	Limit int `query:"limit" validate:"omitempty,gte=0,lte=1000"`
}

type HistoryResponse struct {
	redis.TimingSummary
	Recent []redis.TimingEntry `json:"recent,omitempty"`
}
