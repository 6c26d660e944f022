package device

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// pendingToken never completes.
type pendingToken struct{ fakeToken }

func newPendingToken() *pendingToken {
	return &pendingToken{fakeToken{done: make(chan struct{})}}
}

type fakeMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return qos }
func (m fakeMessage) Retained() bool    { return m.retained }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic   string
	payload []byte
}

type fakeBroker struct {
	mu         sync.Mutex
	published  []published
	handlers   map[string]mqtt.MessageHandler
	publishErr error
	hang       bool
	// onPublish runs after a publish is recorded, outside the lock.
	onPublish func(topic string, payload []byte)
	// retained messages reach a new subscriber from another goroutine after
	// retainDelay, the way a broker sends them once the SUBACK is out.
	retained    map[string][]byte
	retainDelay time.Duration
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		handlers:    make(map[string]mqtt.MessageHandler),
		retained:    make(map[string][]byte),
		retainDelay: 20 * time.Millisecond,
	}
}

func (b *fakeBroker) retain(t *testing.T, topic string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retained[topic] = raw
}

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	raw, _ := payload.([]byte)
	b.mu.Lock()
	b.published = append(b.published, published{topic: topic, payload: raw})
	hook, err, hang := b.onPublish, b.publishErr, b.hang
	b.mu.Unlock()
	if hang {
		return newPendingToken()
	}
	if hook != nil && err == nil {
		hook(topic, raw)
	}
	return newToken(err)
}

func (b *fakeBroker) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = callback
	if raw, ok := b.retained[topic]; ok {
		delay := b.retainDelay
		go func() {
			time.Sleep(delay)
			callback(nil, fakeMessage{topic: topic, payload: raw, retained: true})
		}()
	}
	return newToken(nil)
}

func (b *fakeBroker) Unsubscribe(topics ...string) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		delete(b.handlers, t)
	}
	return newToken(nil)
}

func (b *fakeBroker) deliver(t *testing.T, topic string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	b.deliverRaw(t, topic, raw)
}

func (b *fakeBroker) deliverRaw(t *testing.T, topic string, raw []byte) {
	t.Helper()
	b.mu.Lock()
	h, ok := b.handlers[topic]
	b.mu.Unlock()
	require.True(t, ok, "no subscription on %s", topic)
	h(nil, fakeMessage{topic: topic, payload: raw})
}

func (b *fakeBroker) subscribed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handlers[topic]
	return ok
}

func (b *fakeBroker) commands(t *testing.T, topic string) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, p := range b.published {
		if p.topic != topic {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(p.payload, &m))
		out = append(out, m)
	}
	return out
}
