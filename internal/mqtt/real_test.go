package mqtt

import (
	"errors"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// stubToken is an already-completed paho token with a scripted result.
type stubToken struct {
	err error
}

func (t stubToken) Wait() bool                     { return true }
func (t stubToken) WaitTimeout(time.Duration) bool { return true }
func (t stubToken) Error() error                   { return t.err }
func (t stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// scriptedClient is a paho client double recording publishes. failFrom, when
// positive, makes every publish after that many successes fail.
type scriptedClient struct {
	connected bool
	published []queued
	failFrom  int
	attempts  int
}

func (c *scriptedClient) IsConnected() bool      { return c.connected }
func (c *scriptedClient) IsConnectionOpen() bool { return c.connected }
func (c *scriptedClient) Connect() paho.Token    { return stubToken{} }
func (c *scriptedClient) Disconnect(uint)        {}

func (c *scriptedClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.attempts++
	if c.failFrom > 0 && len(c.published) >= c.failFrom {
		return stubToken{err: errors.New("broker rejected publish")}
	}
	c.published = append(c.published, queued{
		topic:   topic,
		payload: payload.([]byte),
		qos:     qos,
		retain:  retained,
	})
	return stubToken{}
}

func (c *scriptedClient) Subscribe(string, byte, paho.MessageHandler) paho.Token {
	return stubToken{}
}

func (c *scriptedClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return stubToken{}
}

func (c *scriptedClient) Unsubscribe(...string) paho.Token { return stubToken{} }
func (c *scriptedClient) AddRoute(string, paho.MessageHandler) {}
func (c *scriptedClient) OptionsReader() paho.ClientOptionsReader {
	return paho.ClientOptionsReader{}
}

func testPublisher(connected bool) (*RealPublisher, *scriptedClient) {
	client := &scriptedClient{connected: connected}
	return &RealPublisher{client: client, pending: newBacklog(backlogLimit)}, client
}

func heatingEvent(eventType string, current float64) Event {
	return Event{
		Timestamp: time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC),
		Type:      eventType,
		Mode:      "auto",
		Current:   current,
		Target:    21.0,
		HasTarget: true,
	}
}

func TestPublishConnectedDeliversDirectly(t *testing.T) {
	p, client := testPublisher(true)

	if err := p.Publish(heatingEvent("HEATING_ON", 20.4)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(client.published) != 1 {
		t.Fatalf("expected 1 delivered message, got %d", len(client.published))
	}
	if client.published[0].topic != Topic {
		t.Errorf("topic: got %s, want %s", client.published[0].topic, Topic)
	}
	if client.published[0].qos != 0 {
		t.Errorf("heating events use QoS 0, got %d", client.published[0].qos)
	}
	if p.pending.size() != 0 {
		t.Errorf("nothing should be held while connected, got %d", p.pending.size())
	}
}

func TestPublishDisconnectedHoldsForReplay(t *testing.T) {
	p, client := testPublisher(false)

	if err := p.Publish(heatingEvent("HEATING_ON", 20.4)); err != nil {
		t.Fatalf("publish while disconnected must not fail: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err != nil {
		t.Fatalf("system publish while disconnected must not fail: %v", err)
	}

	if len(client.published) != 0 {
		t.Fatalf("nothing must reach a disconnected broker, got %d messages", len(client.published))
	}
	if p.pending.size() != 2 {
		t.Fatalf("expected 2 held messages, got %d", p.pending.size())
	}
}

func TestDrainReplaysInPublishOrder(t *testing.T) {
	p, client := testPublisher(false)

	p.Publish(heatingEvent("HEATING_ON", 20.4))
	p.Publish(heatingEvent("HEATING_OFF", 21.6))
	p.PublishSystem(SystemEvent{Event: "SHUTDOWN", Reason: "SIGTERM", Retained: true})

	client.connected = true
	p.drain()

	if len(client.published) != 3 {
		t.Fatalf("expected 3 replayed messages, got %d", len(client.published))
	}
	if !strings.Contains(string(client.published[0].payload), "HEATING_ON") {
		t.Errorf("message 0: expected the switch-on event first, got %s", client.published[0].payload)
	}
	if !strings.Contains(string(client.published[1].payload), "HEATING_OFF") {
		t.Errorf("message 1: expected the switch-off event second, got %s", client.published[1].payload)
	}
	if client.published[2].topic != TopicSystem {
		t.Errorf("message 2: topic got %s, want %s", client.published[2].topic, TopicSystem)
	}
	if client.published[2].qos != 1 {
		t.Errorf("system messages use QoS 1, got %d", client.published[2].qos)
	}
	if !client.published[2].retain {
		t.Error("the shutdown event must keep its retained flag through replay")
	}

	if p.pending.size() != 0 {
		t.Errorf("replay must empty the backlog, %d left", p.pending.size())
	}
}

func TestDrainWithEmptyBacklogIsQuiet(t *testing.T) {
	p, client := testPublisher(true)
	p.drain()
	if client.attempts != 0 {
		t.Errorf("expected no publish attempts, got %d", client.attempts)
	}
}

func TestDrainStopsAfterPublishError(t *testing.T) {
	p, client := testPublisher(false)
	client.failFrom = 1

	p.Publish(heatingEvent("HEATING_ON", 20.4))
	p.Publish(heatingEvent("HEATING_OFF", 21.6))
	p.PublishSystem(SystemEvent{Event: "HEARTBEAT"})

	client.connected = true
	p.drain()

	if len(client.published) != 1 {
		t.Errorf("expected 1 delivered message before the failure, got %d", len(client.published))
	}
	if client.attempts != 2 {
		t.Errorf("replay must stop at the first failure: got %d attempts, want 2", client.attempts)
	}
}

func TestBacklogKeepsNewestWhenFull(t *testing.T) {
	client := &scriptedClient{}
	p := &RealPublisher{client: client, pending: newBacklog(2)}

	p.Publish(heatingEvent("HEATING_ON", 18.0))
	p.Publish(heatingEvent("HEATING_OFF", 22.0))
	p.Publish(heatingEvent("HEATING_ON", 19.0))

	client.connected = true
	p.drain()

	if len(client.published) != 2 {
		t.Fatalf("expected 2 replayed messages, got %d", len(client.published))
	}
	if !strings.Contains(string(client.published[0].payload), "HEATING_OFF") {
		t.Errorf("the oldest event must give way: got %s", client.published[0].payload)
	}
	if !strings.Contains(string(client.published[1].payload), "19") {
		t.Errorf("the newest event must survive: got %s", client.published[1].payload)
	}
}
