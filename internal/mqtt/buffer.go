package mqtt

import "github.com/sirupsen/logrus"

// queued is one undelivered broker message held for replay.
type queued struct {
	topic   string
	payload []byte
	qos     byte
	retain  bool
}

// backlog holds messages published while the broker connection is down, in
// publish order. When full, the oldest message gives way so a reconnecting
// subscriber sees the most recent thermostat history. Callers synchronize
// access.
type backlog struct {
	limit   int
	dropped int
	msgs    []queued
}

func newBacklog(limit int) *backlog {
	return &backlog{limit: limit}
}

func (b *backlog) add(m queued) {
	if len(b.msgs) >= b.limit {
		if b.dropped == 0 {
			logrus.WithField("limit", b.limit).Warn("mqtt: backlog full, dropping oldest message")
		}
		b.dropped++
		copy(b.msgs, b.msgs[1:])
		b.msgs = b.msgs[:len(b.msgs)-1]
	}
	b.msgs = append(b.msgs, m)
}

// take empties the backlog and returns its messages in publish order.
func (b *backlog) take() []queued {
	if len(b.msgs) == 0 {
		return nil
	}
	if b.dropped > 0 {
		logrus.WithField("dropped", b.dropped).Warn("mqtt: backlog overflowed while disconnected")
	}
	out := b.msgs
	b.msgs = nil
	b.dropped = 0
	return out
}

func (b *backlog) size() int {
	return len(b.msgs)
}
