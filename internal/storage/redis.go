package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/nshruti113/ddos-detector/internal/models"
)

const (
	alertsByIDKey    = "alerts:by_id"
	alertsHistoryKey = "alerts:history"
)

// Options configures the Redis connection and key layout
type Options struct {
	Addr         string
	Password     string
	DB           int
	AlertChannel string
	BlocklistKey string
	// HistoryLimit caps the number of alerts kept; 0 keeps everything
	HistoryLimit int
}

type RedisClient struct {
	client *redis.Client
	opts   Options
}

func NewRedisClient(ctx context.Context, opts Options) (*RedisClient, error) {
	if opts.AlertChannel == "" {
		opts.AlertChannel = "alerts"
	}
	if opts.BlocklistKey == "" {
		opts.BlocklistKey = "blocked:sources"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		opts:   opts,
	}, nil
}

// StoreAlert stores an alert by id and indexes it by time
func (r *RedisClient) StoreAlert(ctx context.Context, alert models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, alertsByIDKey, alert.ID, string(data))
	pipe.ZAdd(ctx, alertsHistoryKey, redis.Z{
		Score:  float64(alert.Time.UnixNano()) / float64(time.Second),
		Member: alert.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store alert %s: %w", alert.ID, err)
	}

	return r.trimHistory(ctx)
}

// trimHistory drops the oldest alerts beyond HistoryLimit
func (r *RedisClient) trimHistory(ctx context.Context) error {
	if r.opts.HistoryLimit <= 0 {
		return nil
	}

	stale, err := r.client.ZRange(ctx, alertsHistoryKey, 0, int64(-r.opts.HistoryLimit-1)).Result()
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	members := make([]interface{}, len(stale))
	for i, id := range stale {
		members[i] = id
	}

	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, alertsHistoryKey, members...)
	pipe.HDel(ctx, alertsByIDKey, stale...)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentAlerts returns up to n stored alerts, newest first
func (r *RedisClient) RecentAlerts(ctx context.Context, n int) ([]models.Alert, error) {
	if n <= 0 {
		return nil, nil
	}

	ids, err := r.client.ZRevRange(ctx, alertsHistoryKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Alert{}, nil
	}

	values, err := r.client.HMGet(ctx, alertsByIDKey, ids...).Result()
	if err != nil {
		return nil, err
	}

	alerts := make([]models.Alert, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var alert models.Alert
		if err := json.Unmarshal([]byte(s), &alert); err != nil {
			continue
		}
		alerts = append(alerts, alert)
	}

	return alerts, nil
}

// PublishAlert publishes an alert to subscribers
func (r *RedisClient) PublishAlert(ctx context.Context, alert models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	return r.client.Publish(ctx, r.opts.AlertChannel, string(data)).Err()
}

// Ping checks the connection
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// AlertStore persists and publishes every alert raised by the engine
type AlertStore struct {
	redis *RedisClient
}

func NewAlertStore(r *RedisClient) *AlertStore {
	return &AlertStore{redis: r}
}

func (s *AlertStore) Name() string { return "redis" }

func (s *AlertStore) Publish(ctx context.Context, alert models.Alert) error {
	if err := s.redis.StoreAlert(ctx, alert); err != nil {
		return err
	}
	return s.redis.PublishAlert(ctx, alert)
}

// Blocklist is an enforcer that keeps blocked sources in a Redis set for
// edge proxies to consult. SADD and SREM make both calls idempotent.
type Blocklist struct {
	redis *RedisClient
}

func NewBlocklist(r *RedisClient) *Blocklist {
	return &Blocklist{redis: r}
}

func (b *Blocklist) Name() string { return "redis" }

func (b *Blocklist) Block(ctx context.Context, sourceID string) error {
	return b.redis.client.SAdd(ctx, b.redis.opts.BlocklistKey, sourceID).Err()
}

func (b *Blocklist) Unblock(ctx context.Context, sourceID string) error {
	return b.redis.client.SRem(ctx, b.redis.opts.BlocklistKey, sourceID).Err()
}

// Members returns every source currently in the blocklist
func (b *Blocklist) Members(ctx context.Context) ([]string, error) {
	return b.redis.client.SMembers(ctx, b.redis.opts.BlocklistKey).Result()
}
