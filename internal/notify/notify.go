// Package notify は端末の状態変化をコンパニオンクライアントへ通知するフィードを提供する。
//
// 単一インスタンスではBrokerをそのまま使い、複数インスタンス構成では
// RedisNotifierがRedis Pub/Sub経由で各インスタンスのBrokerへ配信する。
// 配信はベストエフォートで、購読者のバッファが埋まっている場合は破棄される。
package notify

import (
	"context"
	"time"
)

// EventType はイベントの種類を表す。
type EventType string

// EventDeviceRemoved は端末が削除されたことを表す。
const EventDeviceRemoved EventType = "device_removed"

// Event は端末に関する変更イベントを表す。
type Event struct {
	Type     EventType `json:"type"`
	DeviceID string    `json:"device_id"`
	At       time.Time `json:"at"`
}

// DeviceRemoved は端末削除イベントを生成する。
func DeviceRemoved(deviceID string) Event {
	return Event{Type: EventDeviceRemoved, DeviceID: deviceID, At: time.Now()}
}

// Publisher はイベントを発行するインターフェース。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Notifier はイベントの発行と端末単位の購読を提供する。
type Notifier interface {
	Publisher
	// Subscribe は指定端末宛てのイベントを受け取るチャネルを返す。
	// 返された関数を呼ぶか、ctxが終了すると購読が解除されチャネルが閉じられる。
	Subscribe(ctx context.Context, deviceID string) (<-chan Event, func())
}
