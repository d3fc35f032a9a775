package redis

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "detectbench:timings:"

// TimingEntry is one served request's rounded server-side phases, in seconds.
type TimingEntry struct {
	Strategy   string    `json:"strategy"`
	Filename   string    `json:"filename"`
	RecvPre    float64   `json:"server_recv_pre"`
	Infer      float64   `json:"server_infer"`
	Post       float64   `json:"server_post"`
	RecordedAt time.Time `json:"recorded_at"`
}

type TimingMean struct {
	RecvPre float64 `json:"server_recv_pre"`
	Infer   float64 `json:"server_infer"`
	Post    float64 `json:"server_post"`
}

type TimingSummary struct {
	Strategy string     `json:"strategy"`
	Count    int        `json:"count"`
	Mean     TimingMean `json:"mean"`
}

type IRedis interface {
	PushTiming(ctx context.Context, entry TimingEntry) error
	RecentTimings(ctx context.Context, strategy string, limit int) ([]TimingEntry, error)
	Summary(ctx context.Context, strategy string) (TimingSummary, error)
	Close() error
}

type Config struct {
	Address  string
	Password string
	DB       int
	History  int
}

type redisClient struct {
	client  *redis.Client
	history int
	log     *logrus.Logger
}

// New connects to Redis. Without an address the returned store keeps nothing.
func New(cfg Config, log *logrus.Logger) IRedis {
	if cfg.Address == "" {
		log.Info("Redis address not set, timing history disabled")
		return noopStore{}
	}

	log.Info(fmt.Sprintf("Connecting to Redis at %s...", cfg.Address))

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		log.Info("Successfully connected to Redis")
	}

	return NewWithClient(client, cfg.History, log)
}

func NewWithClient(client *redis.Client, history int, log *logrus.Logger) IRedis {
	if history <= 0 {
		history = 200
	}
	return &redisClient{client: client, history: history, log: log}
}

func key(strategy string) string {
	return keyPrefix + strategy
}

func (r *redisClient) PushTiming(ctx context.Context, entry TimingEntry) error {
	payload, err := jsoniter.Marshal(entry)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key(entry.Strategy), payload)
	pipe.LTrim(ctx, key(entry.Strategy), 0, int64(r.history-1))
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error(fmt.Sprintf("Error recording timing for strategy %s: %v", entry.Strategy, err))
		return err
	}

	r.log.Debug(fmt.Sprintf("Recorded timing for strategy %s", entry.Strategy))
	return nil
}

// RecentTimings returns newest first. limit <= 0 means the whole history.
func (r *redisClient) RecentTimings(ctx context.Context, strategy string, limit int) ([]TimingEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	raw, err := r.client.LRange(ctx, key(strategy), 0, stop).Result()
	if err != nil {
		r.log.Error(fmt.Sprintf("Error reading timings for strategy %s: %v", strategy, err))
		return nil, err
	}

	entries := make([]TimingEntry, 0, len(raw))
	for _, item := range raw {
		var e TimingEntry
		if err := jsoniter.UnmarshalFromString(item, &e); err != nil {
			r.log.Warn(fmt.Sprintf("Skipping malformed timing entry for strategy %s: %v", strategy, err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *redisClient) Summary(ctx context.Context, strategy string) (TimingSummary, error) {
	entries, err := r.RecentTimings(ctx, strategy, 0)
	if err != nil {
		return TimingSummary{}, err
	}
	return Summarize(strategy, entries), nil
}

func (r *redisClient) Close() error {
	return r.client.Close()
}

func Summarize(strategy string, entries []TimingEntry) TimingSummary {
	s := TimingSummary{Strategy: strategy, Count: len(entries)}
	if len(entries) == 0 {
		return s
	}
	for _, e := range entries {
		s.Mean.RecvPre += e.RecvPre
		s.Mean.Infer += e.Infer
		s.Mean.Post += e.Post
	}
	n := float64(len(entries))
	s.Mean.RecvPre /= n
	s.Mean.Infer /= n
	s.Mean.Post /= n
	return s
}

type noopStore struct{}

func (noopStore) PushTiming(context.Context, TimingEntry) error { return nil }

func (noopStore) RecentTimings(context.Context, string, int) ([]TimingEntry, error) {
	return nil, nil
}

func (noopStore) Summary(_ context.Context, strategy string) (TimingSummary, error) {
	return TimingSummary{Strategy: strategy}, nil
}

func (noopStore) Close() error { return nil }
