// Package notify mirrors button and sequence events to external brokers.
// Delivery is best effort: the TCP broadcast remains the authoritative
// notification path and a broker outage never affects it.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cyberinferno/gpiod/config"
	"github.com/cyberinferno/gpiod/logger"
)

// ErrNotConnected is returned when publishing through a client that has lost
// its broker connection.
var ErrNotConnected = errors.New("notify: not connected")

// Event types.
const (
	TypeButton   = "button"
	TypeSequence = "sequence"
)

// Event is the JSON document published for each occurrence.
type Event struct {
	Type string `json:"type"`
	// Pin is set for button events.
	Pin int `json:"pin,omitempty"`
	// Action is "start" or "stop" for sequence events.
	Action     string    `json:"action,omitempty"`
	Generation uint64    `json:"generation,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Encode returns the JSON form of e.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("notify: encode %s event: %w", e.Type, err)
	}

	return data, nil
}

// Publisher delivers events to one destination.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Multi publishes to every member and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// FromConfig connects every enabled mirror. With none enabled it returns Nop.
// A mirror that fails to connect is logged and skipped so gpiod still starts.
//
// Parameters:
//   - ctx: Context bounding the initial connection checks
//   - cfg: Notify configuration
//   - log: Logger for connection failures
//
// Returns:
//   - A Publisher covering every mirror that connected
func FromConfig(ctx context.Context, cfg config.NotifyConfig, log logger.Logger) Publisher {
	if log == nil {
		log = logger.Nop()
	}

	var pubs Multi

	if cfg.Redis.Enabled {
		p, err := NewRedisPublisher(ctx, cfg.Redis)
		if err != nil {
			log.Error("redis event mirror disabled", logger.Err(err))
		} else {
			log.Info("redis event mirror connected",
				logger.F("addr", cfg.Redis.Addr),
				logger.F("channel", cfg.Redis.Channel),
			)
			pubs = append(pubs, p)
		}
	}

	if cfg.MQTT.Enabled {
		p, err := NewMQTTPublisher(cfg.MQTT)
		if err != nil {
			log.Error("mqtt event mirror disabled", logger.Err(err))
		} else {
			log.Info("mqtt event mirror connected",
				logger.F("host", cfg.MQTT.Host),
				logger.F("topic", cfg.MQTT.Topic),
			)
			pubs = append(pubs, p)
		}
	}

	if len(pubs) == 0 {
		return Nop{}
	}

	return pubs
}
