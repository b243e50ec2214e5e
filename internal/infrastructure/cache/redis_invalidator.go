package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/erp/catalog-engine/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultInvalidationChannel = "catalog:cache:invalidate"
	defaultCloseTimeout        = 5 * time.Second
)

// InvalidationMessage is broadcast on the invalidation channel
type InvalidationMessage struct {
	Origin    string `json:"origin"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisInvalidator fans cache invalidations out to every instance over
// Redis Pub/Sub. Each instance ignores its own messages since it already
// cleared its cache locally.
type RedisInvalidator struct {
	client    *redis.Client
	channel   string
	origin    string
	logger    *zap.Logger
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	mu        sync.Mutex
	isRunning bool
}

// RedisInvalidatorOption is a functional option for configuring the invalidator
type RedisInvalidatorOption func(*RedisInvalidator)

// WithInvalidatorChannel sets the Pub/Sub channel name
func WithInvalidatorChannel(channel string) RedisInvalidatorOption {
	return func(i *RedisInvalidator) {
		if channel != "" {
			i.channel = channel
		}
	}
}

// WithInvalidatorLogger sets the logger for the invalidator
func WithInvalidatorLogger(logger *zap.Logger) RedisInvalidatorOption {
	return func(i *RedisInvalidator) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewRedisInvalidator creates an invalidator over a shared client. The
// caller keeps ownership of the client.
func NewRedisInvalidator(client *redis.Client, opts ...RedisInvalidatorOption) *RedisInvalidator {
	i := &RedisInvalidator{
		client:  client,
		channel: defaultInvalidationChannel,
		origin:  uuid.NewString(),
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// PublishInvalidation implements Broadcaster
func (i *RedisInvalidator) PublishInvalidation(ctx context.Context, reason string) error {
	data, err := json.Marshal(InvalidationMessage{
		Origin:    i.origin,
		Reason:    reason,
		Timestamp: time.Now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	i.logger.Debug("Published cache invalidation",
		zap.String("reason", reason),
		zap.String("channel", i.channel))
	return nil
}

// Subscribe blocks, calling target.InvalidateAll for every invalidation
// published by another instance, until ctx is cancelled or Close is called.
func (i *RedisInvalidator) Subscribe(ctx context.Context, target Invalidator) error {
	i.mu.Lock()
	if i.isRunning {
		i.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	i.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	i.cancelFn = cancel
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		i.isRunning = false
		i.mu.Unlock()
		i.markDone()
	}()

	pubsub := i.client.Subscribe(subCtx, i.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	i.logger.Info("Subscribed to cache invalidation channel", zap.String("channel", i.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			i.logger.Info("Cache invalidation subscription stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				i.logger.Warn("Cache invalidation channel closed")
				return nil
			}
			i.apply(msg.Payload, target)
		}
	}
}

func (i *RedisInvalidator) apply(payload string, target Invalidator) {
	var msg InvalidationMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		i.logger.Error("Failed to unmarshal cache invalidation",
			zap.String("payload", payload),
			zap.Error(err))
		return
	}
	if msg.Origin == i.origin {
		return
	}
	target.InvalidateAll()
	i.logger.Debug("Applied remote cache invalidation",
		zap.String("origin", msg.Origin),
		zap.String("reason", msg.Reason))
}

func (i *RedisInvalidator) markDone() {
	i.doneOnce.Do(func() {
		close(i.doneCh)
	})
}

// Close stops a running subscription and waits for it to end
func (i *RedisInvalidator) Close() error {
	i.mu.Lock()
	cancelFn := i.cancelFn
	i.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-i.doneCh:
		case <-time.After(defaultCloseTimeout):
			i.logger.Warn("Timeout waiting for subscription to stop")
		}
	}
	return nil
}

var _ Broadcaster = (*RedisInvalidator)(nil)
