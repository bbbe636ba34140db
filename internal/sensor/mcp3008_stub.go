//go:build !linux

package sensor

import "errors"

// MCP3008 is not available on non-Linux platforms.
type MCP3008 struct{}

// NewMCP3008 returns an error on non-Linux platforms.
func NewMCP3008(string) (*MCP3008, error) {
	return nil, errors.New("sensor: MCP3008 requires Linux SPI support")
}

// Channel is not implemented on non-Linux platforms.
func (m *MCP3008) Channel(int) (ChannelReader, error) {
	return nil, errors.New("sensor: MCP3008 not supported on this platform")
}

// Close is a no-op on non-Linux platforms.
func (m *MCP3008) Close() error { return nil }
