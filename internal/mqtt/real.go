package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// backlogLimit bounds how many messages are held while disconnected.
const backlogLimit = 256

// RealPublisher publishes to an actual MQTT broker. Messages that cannot be
// delivered while the connection is down are held in a backlog and replayed
// in order when the connection comes back.
type RealPublisher struct {
	client paho.Client

	mu      sync.Mutex
	pending *backlog

	onConnChange func(bool)
}

// NewRealPublisher creates a publisher connected to the given broker. The
// client ID carries a random suffix so several daemons can share a broker.
// onConnChange, if not nil, is invoked on every connection state change.
func NewRealPublisher(broker string, onConnChange func(bool)) (*RealPublisher, error) {
	p := &RealPublisher{
		pending:      newBacklog(backlogLimit),
		onConnChange: onConnChange,
	}

	lwt, _ := json.Marshal(SystemPayload{
		System: SystemPayloadInner{Event: "OFFLINE", Reason: "connection lost"},
	})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("thermod-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicSystem, string(lwt), 1, false).
		SetOnConnectHandler(func(paho.Client) {
			logrus.Info("mqtt: connected")
			if p.onConnChange != nil {
				p.onConnChange(true)
			}
			p.drain()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logrus.WithError(err).Warn("mqtt: connection lost")
			if p.onConnChange != nil {
				p.onConnChange(false)
			}
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// Publish sends a thermostat event to the MQTT broker.
func (p *RealPublisher) Publish(event Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(Topic, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) so shutdown events are not lost
	return p.send(TopicSystem, 1, event.Retained, payload)
}

// send delivers one message, or buffers it for replay if the connection is
// down.
func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnected() {
		p.mu.Lock()
		p.pending.add(queued{topic: topic, payload: payload, qos: qos, retain: retained})
		n := p.pending.size()
		p.mu.Unlock()
		logrus.WithField("pending", n).Debug("mqtt: disconnected, message held for replay")
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// drain replays backlogged messages after a reconnection.
func (p *RealPublisher) drain() {
	p.mu.Lock()
	msgs := p.pending.take()
	p.mu.Unlock()

	if len(msgs) == 0 {
		return
	}
	logrus.WithField("count", len(msgs)).Info("mqtt: replaying backlogged messages")
	for _, m := range msgs {
		token := p.client.Publish(m.topic, m.qos, m.retain, m.payload)
		if !token.WaitTimeout(5 * time.Second) {
			logrus.Warn("mqtt: replay timeout, dropping remaining backlogged messages")
			return
		}
		if err := token.Error(); err != nil {
			logrus.WithError(err).Warn("mqtt: replay failed")
			return
		}
	}
}

// IsConnected reports whether the MQTT connection is active.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
