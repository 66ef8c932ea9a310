package eventbus

import "context"

// Bus is the collaborator interface from spec §6
// (EventBus.publish(topic, key, payload) -> Result). The outbox publisher
// is the only caller; the core never reaches the wire directly.
type Bus interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}
