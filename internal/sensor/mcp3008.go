//go:build linux

package sensor

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// MCP3008 is the 8-channel SPI A/D converter on the AnalogZero board. All
// channels share one SPI handle, so reads are serialized on the device and
// closing any channel closes the device.
type MCP3008 struct {
	port spi.PortCloser
	conn spi.Conn

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewMCP3008 opens the SPI device (e.g. "/dev/spidev0.0", or "" for the
// first registered port).
func NewMCP3008(dev string) (*MCP3008, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}

	port, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("open SPI device %q: %w", dev, err)
	}

	// 15200 Hz is the most reliable clock for TMP36 probes through this
	// converter.
	conn, err := port.Connect(15200*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect SPI device %q: %w", dev, err)
	}

	return &MCP3008{port: port, conn: conn}, nil
}

// Channel returns a reader for one converter channel (0-7).
func (m *MCP3008) Channel(ch int) (ChannelReader, error) {
	if ch < 0 || ch > 7 {
		return nil, fmt.Errorf("sensor: MCP3008 channel must be in range 0-7, got %d", ch)
	}
	return &mcpChannel{dev: m, ch: ch}, nil
}

// Close releases the SPI handle. Idempotent.
func (m *MCP3008) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.port.Close()
	})
	return m.closeErr
}

type mcpChannel struct {
	dev *MCP3008
	ch  int
}

// Value performs one single-ended conversion and normalizes the 10-bit
// result to [0,1].
func (c *mcpChannel) Value() (float64, error) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()

	tx := []byte{1, byte(8+c.ch) << 4, 0}
	rx := make([]byte, len(tx))
	if err := c.dev.conn.Tx(tx, rx); err != nil {
		return 0, fmt.Errorf("read MCP3008 channel %d: %w", c.ch, err)
	}

	raw := (int(rx[1]&3) << 8) | int(rx[2])
	return float64(raw) / 1023.0, nil
}

// Close closes the shared device.
func (c *mcpChannel) Close() error { return c.dev.Close() }
