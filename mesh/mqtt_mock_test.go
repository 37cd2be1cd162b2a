package mesh

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

// fakeToken is an already-completed mqtt.Token.
type fakeToken struct {
	err error
}

func newFakeToken(err error) *fakeToken { return &fakeToken{err: err} }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// sentMessage is one Publish call seen by fakeBroker.
type sentMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// fakeBroker is an in-memory mqtt.Client. Publish delivers synchronously to
// handlers subscribed to the exact topic, so a publisher and a subscriber
// sharing one fakeBroker talk to each other. Subscribe goes through the
// embedded mock so tests can assert on topic and QoS.
type fakeBroker struct {
	mock.Mock

	mu           sync.RWMutex
	connected    bool
	publishError error
	handlers     map[string]mqtt.MessageHandler
	sent         []sentMessage
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *fakeBroker) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

func (c *fakeBroker) SetPublishError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishError = err
}

func (c *fakeBroker) Sent() []sentMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]sentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// Deliver hands payload to the handler subscribed to topic, if any.
func (c *fakeBroker) Deliver(topic string, payload []byte) {
	c.mu.RLock()
	handler := c.handlers[topic]
	c.mu.RUnlock()
	if handler != nil {
		handler(c, &fakeMessage{topic: topic, payload: payload})
	}
}

func (c *fakeBroker) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *fakeBroker) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeBroker) Connect() mqtt.Token {
	c.SetConnected(true)
	return newFakeToken(nil)
}

func (c *fakeBroker) Disconnect(uint) {
	c.SetConnected(false)
}

func (c *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return newFakeToken(mqtt.ErrNotConnected)
	}
	if c.publishError != nil {
		err := c.publishError
		c.mu.Unlock()
		return newFakeToken(err)
	}

	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	}
	c.sent = append(c.sent, sentMessage{Topic: topic, Payload: data, QoS: qos, Retain: retained})
	c.mu.Unlock()

	c.Deliver(topic, data)
	return newFakeToken(nil)
}

func (c *fakeBroker) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	args := c.Called(topic, qos)
	if err := args.Error(0); err != nil {
		return newFakeToken(err)
	}
	c.AddRoute(topic, callback)
	return newFakeToken(nil)
}

func (c *fakeBroker) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		if tok := c.Subscribe(topic, qos, callback); tok.Error() != nil {
			return tok
		}
	}
	return newFakeToken(nil)
}

func (c *fakeBroker) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.handlers, topic)
	}
	return newFakeToken(nil)
}

func (c *fakeBroker) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
}

func (c *fakeBroker) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// fakeMessage implements mqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

var _ mqtt.Client = (*fakeBroker)(nil)
