package notify

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultSubscriberBuffer は購読者ごとのチャネルバッファのデフォルトサイズ。
const DefaultSubscriberBuffer = 8

type subscriber struct {
	deviceID string
	events   chan Event
	stop     chan struct{}
	once     sync.Once
}

// Broker はプロセス内で端末ごとにイベントを配信する。
type Broker struct {
	logger     *slog.Logger
	bufferSize int

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

// NewBroker はBrokerを生成する。bufferSizeが0以下の場合はデフォルト値を使う。
func NewBroker(logger *slog.Logger, bufferSize int) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Broker{
		logger:     logger,
		bufferSize: bufferSize,
		subs:       make(map[string]map[*subscriber]struct{}),
	}
}

// Publish はイベントを対象端末の全購読者へ配信する。
// バッファが埋まっている購読者への配信は破棄される。
func (b *Broker) Publish(_ context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs[event.DeviceID] {
		select {
		case s.events <- event:
		default:
			b.logger.Warn("subscriber buffer full, event dropped",
				slog.String("device_id", event.DeviceID),
				slog.String("type", string(event.Type)),
			)
		}
	}
	return nil
}

// Subscribe は指定端末宛てのイベントを受け取るチャネルを返す。
func (b *Broker) Subscribe(ctx context.Context, deviceID string) (<-chan Event, func()) {
	s := &subscriber{
		deviceID: deviceID,
		events:   make(chan Event, b.bufferSize),
		stop:     make(chan struct{}),
	}

	b.mu.Lock()
	if b.subs[deviceID] == nil {
		b.subs[deviceID] = make(map[*subscriber]struct{})
	}
	b.subs[deviceID][s] = struct{}{}
	b.mu.Unlock()

	cancel := func() { b.remove(s) }

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-s.stop:
		}
	}()

	return s.events, cancel
}

// SubscriberCount は指定端末の購読者数を返す。
func (b *Broker) SubscriberCount(deviceID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[deviceID])
}

func (b *Broker) remove(s *subscriber) {
	s.once.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		delete(b.subs[s.deviceID], s)
		if len(b.subs[s.deviceID]) == 0 {
			delete(b.subs, s.deviceID)
		}
		close(s.events)
		close(s.stop)
	})
}

// compile-time interface check
var _ Notifier = (*Broker)(nil)
