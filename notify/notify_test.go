package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/gpiod/config"
	"github.com/cyberinferno/gpiod/logger"
)

type fakeRedis struct {
	mu       sync.Mutex
	err      error
	channel  string
	payloads [][]byte
	closed   bool
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = channel
	f.payloads = append(f.payloads, message.([]byte))
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

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

type fakeMQTT struct {
	open     bool
	err      error
	topic    string
	qos      byte
	retained bool
	payload  []byte
	quiesce  uint
}

func (f *fakeMQTT) IsConnectionOpen() bool { return f.open }

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.topic, f.qos, f.retained = topic, qos, retained
	f.payload = payload.([]byte)
	return newToken(f.err)
}

func (f *fakeMQTT) Disconnect(quiesce uint) { f.quiesce = quiesce }

type recorder struct {
	events []Event
	err    error
	closed bool
}

func (r *recorder) Publish(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) Close() error {
	r.closed = true
	return r.err
}

func TestEventEncode(t *testing.T) {
	at := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	data, err := Event{Type: TypeButton, Pin: 18, Timestamp: at}.Encode()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "button", got["type"])
	assert.Equal(t, float64(18), got["pin"])
	assert.NotContains(t, got, "action")
	assert.Equal(t, "2026-10-17T12:00:00Z", got["timestamp"])
}

func TestRedisPublisher(t *testing.T) {
	t.Run("publishes json on the channel", func(t *testing.T) {
		fake := &fakeRedis{}
		p := &RedisPublisher{client: fake, channel: "gpiod:events"}

		require.NoError(t, p.Publish(context.Background(), Event{Type: TypeSequence, Action: "start", Generation: 3}))

		assert.Equal(t, "gpiod:events", fake.channel)
		require.Len(t, fake.payloads, 1)
		assert.Contains(t, string(fake.payloads[0]), `"action":"start"`)

		require.NoError(t, p.Close())
		assert.True(t, fake.closed)
	})

	t.Run("wraps publish errors", func(t *testing.T) {
		cause := errors.New("connection refused")
		p := &RedisPublisher{client: &fakeRedis{err: cause}, channel: "c"}

		err := p.Publish(context.Background(), Event{Type: TypeButton})
		assert.ErrorIs(t, err, cause)
	})
}

func TestMQTTPublisher(t *testing.T) {
	t.Run("publishes without retain", func(t *testing.T) {
		fake := &fakeMQTT{open: true}
		p := &MQTTPublisher{client: fake, topic: "gpiod/events", qos: 1}

		require.NoError(t, p.Publish(context.Background(), Event{Type: TypeButton, Pin: 18}))
		assert.Equal(t, "gpiod/events", fake.topic)
		assert.Equal(t, byte(1), fake.qos)
		assert.False(t, fake.retained)
		assert.Contains(t, string(fake.payload), `"pin":18`)
	})

	t.Run("refuses while disconnected", func(t *testing.T) {
		p := &MQTTPublisher{client: &fakeMQTT{}, topic: "t"}
		assert.ErrorIs(t, p.Publish(context.Background(), Event{}), ErrNotConnected)
	})

	t.Run("wraps token errors", func(t *testing.T) {
		cause := errors.New("not authorized")
		p := &MQTTPublisher{client: &fakeMQTT{open: true, err: cause}, topic: "t"}
		assert.ErrorIs(t, p.Publish(context.Background(), Event{}), cause)
	})

	t.Run("close disconnects", func(t *testing.T) {
		fake := &fakeMQTT{open: true}
		p := &MQTTPublisher{client: fake}
		require.NoError(t, p.Close())
		assert.Equal(t, uint(mqttDisconnectQuiesce), fake.quiesce)
	})

	t.Run("unreachable broker fails without waiting for the timeout", func(t *testing.T) {
		start := time.Now()
		p, err := NewMQTTPublisher(config.MQTTConfig{Host: "127.0.0.1", Port: 1, ClientID: "gpiod-test", Topic: "t"})
		require.Error(t, err)
		assert.Nil(t, p)
		assert.Contains(t, err.Error(), "mqtt connect to 127.0.0.1:1")
		assert.Less(t, time.Since(start), mqttConnectTimeout)
	})

	t.Run("options carry broker and credentials", func(t *testing.T) {
		opts := buildMQTTOptions(config.MQTTConfig{Host: "broker", Port: 1883, ClientID: "gpiod", Username: "u", Password: "p"})
		require.Len(t, opts.Servers, 1)
		assert.Equal(t, "tcp://broker:1883", opts.Servers[0].String())
		assert.Equal(t, "gpiod", opts.ClientID)
		assert.Equal(t, "u", opts.Username)
	})
}

func TestMulti(t *testing.T) {
	t.Run("publishes to every member despite failures", func(t *testing.T) {
		bad := &recorder{err: errors.New("down")}
		good := &recorder{}
		m := Multi{bad, good}

		err := m.Publish(context.Background(), Event{Type: TypeButton})
		assert.Error(t, err)
		assert.Len(t, bad.events, 1)
		assert.Len(t, good.events, 1)

		assert.Error(t, m.Close())
		assert.True(t, good.closed)
	})

	t.Run("nop accepts everything", func(t *testing.T) {
		assert.NoError(t, Nop{}.Publish(context.Background(), Event{}))
		assert.NoError(t, Nop{}.Close())
	})
}

func TestFromConfig(t *testing.T) {
	t.Run("nothing enabled yields nop", func(t *testing.T) {
		p := FromConfig(context.Background(), config.NotifyConfig{}, logger.Nop())
		assert.IsType(t, Nop{}, p)
	})

	t.Run("unreachable redis is skipped", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		cfg := config.NotifyConfig{Redis: config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1", Channel: "c"}}
		p := FromConfig(ctx, cfg, logger.Nop())
		assert.IsType(t, Nop{}, p)
	})
}
