package notify

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cyberinferno/gpiod/config"
)

const (
	mqttConnectTimeout    = 10 * time.Second
	mqttPublishTimeout    = 5 * time.Second
	mqttDisconnectQuiesce = 250 // milliseconds
	mqttKeepAlive         = 60 * time.Second
)

// mqttClient is the subset of pahomqtt.Client used for publishing.
type mqttClient interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes events to an MQTT topic.
type MQTTPublisher struct {
	client mqttClient
	topic  string
	qos    byte
}

func buildMQTTOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetKeepAlive(mqttKeepAlive)

	return opts
}

// NewMQTTPublisher connects to the broker.
//
// Parameters:
//   - cfg: Broker address, credentials, topic and QoS
//
// Returns:
//   - A connected MQTTPublisher
//   - An error if the connection fails or times out
func NewMQTTPublisher(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	client := pahomqtt.NewClient(buildMQTTOptions(cfg))

	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("notify: mqtt connect to %s:%d: timeout after %v", cfg.Host, cfg.Port, mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("notify: mqtt connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &MQTTPublisher{client: client, topic: cfg.Topic, qos: byte(cfg.QoS)}, nil
}

// Publish sends ev to the configured topic. Events are not retained.
func (p *MQTTPublisher) Publish(_ context.Context, ev Event) error {
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	payload, err := ev.Encode()
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic, p.qos, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("notify: mqtt publish to %s: timeout after %v", p.topic, mqttPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("notify: mqtt publish to %s: %w", p.topic, err)
	}

	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(mqttDisconnectQuiesce)
	return nil
}
