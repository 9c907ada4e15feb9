package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel はイベントを流すRedisチャネルのデフォルト名。
const DefaultChannel = "linkdist:device-events"

// RedisNotifier はRedis Pub/Subを介して全インスタンスへイベントを配信する。
// 受信したイベントはローカルのBrokerを通して購読者へ渡す。
type RedisNotifier struct {
	client  *redis.Client
	channel string
	local   *Broker
	logger  *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisNotifier はRedisNotifierを生成する。Startを呼ぶまで受信は行わない。
func NewRedisNotifier(client *redis.Client, channel string, logger *slog.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNotifier{
		client:  client,
		channel: channel,
		local:   NewBroker(logger, DefaultSubscriberBuffer),
		logger:  logger,
	}
}

// Start はチャネルを購読し、受信ループを開始する。
// 購読の確認を待ってから戻るため、Start後に発行されたイベントは取りこぼさない。
func (n *RedisNotifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pubsub != nil {
		return nil
	}

	pubsub := n.client.Subscribe(ctx, n.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe %s: %w", n.channel, err)
	}

	n.pubsub = pubsub
	n.done = make(chan struct{})
	go n.receiveLoop(pubsub, n.done)

	n.logger.Info("redis notifier started", slog.String("channel", n.channel))
	return nil
}

func (n *RedisNotifier) receiveLoop(pubsub *redis.PubSub, done chan struct{}) {
	defer close(done)

	for msg := range pubsub.Channel() {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			n.logger.Warn("invalid notify payload",
				slog.String("channel", msg.Channel),
				slog.String("error", err.Error()),
			)
			continue
		}
		_ = n.local.Publish(context.Background(), event)
	}
}

// Publish はイベントをRedisチャネルへ発行する。
func (n *RedisNotifier) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe は指定端末宛てのイベントを受け取るチャネルを返す。
func (n *RedisNotifier) Subscribe(ctx context.Context, deviceID string) (<-chan Event, func()) {
	return n.local.Subscribe(ctx, deviceID)
}

// Close は購読を終了し、受信ループの停止を待つ。
func (n *RedisNotifier) Close() error {
	n.mu.Lock()
	pubsub, done := n.pubsub, n.done
	n.pubsub = nil
	n.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	if err != nil && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("failed to close pubsub: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Notifier = (*RedisNotifier)(nil)
