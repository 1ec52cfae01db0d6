// Package eventbus carries in-process lifecycle notifications so that
// auditing and future integrations stay decoupled from the registry.
package eventbus

import (
	evbus "github.com/asaskevich/EventBus"

	"kani-tts-server/internal/platform/logging"
)

// Lifecycle topics.
const (
	TopicVoiceCreated   = "voice.created"
	TopicVoiceDeleted   = "voice.deleted"
	TopicVoiceTakenDown = "voice.taken_down"
	TopicVoiceRestored  = "voice.restored"
)

// VoiceEvent is the payload published on every voice topic.
type VoiceEvent struct {
	VoiceID string
	Name    string
	Actor   string
}

// Bus wraps the shared event bus with typed publish helpers.
type Bus struct {
	inner evbus.Bus
}

// New creates a bus and attaches the audit log subscriber.
func New(logger *logging.Logger) *Bus {
	b := &Bus{inner: evbus.New()}
	if logger != nil {
		for _, topic := range []string{
			TopicVoiceCreated, TopicVoiceDeleted, TopicVoiceTakenDown, TopicVoiceRestored,
		} {
			t := topic
			_ = b.inner.Subscribe(t, func(ev VoiceEvent) {
				logger.InfoTag("Audit", "%s voice=%s name=%q actor=%s", t, ev.VoiceID, ev.Name, ev.Actor)
			})
		}
	}
	return b
}

// Publish emits a voice event on the given topic.
func (b *Bus) Publish(topic string, ev VoiceEvent) {
	b.inner.Publish(topic, ev)
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.inner.Subscribe(topic, fn)
}

// Close waits for queued callbacks to drain.
func (b *Bus) Close() {
	b.inner.WaitAsync()
}
