// Package transport abstracts the duplex byte stream between the host and
// a GRBL controller: line framing, reconnect backoff, a heartbeat
// watchdog and a link-quality gauge are implemented once here,
// independent of whether the underlying stream is a serial port, a TCP
// socket, or a serial-to-websocket bridge.
package transport

import "errors"

// ErrUnsupportedPlatform is returned by dialers for transports the
// example corpus never implemented (Bluetooth).
var ErrUnsupportedPlatform = errors.New("transport: unsupported on this platform")

// ErrClosed is returned by Send/Dial operations performed after Close.
var ErrClosed = errors.New("transport: link closed")

// Dialer opens a fresh duplex byte stream. Link calls Dial once on Open
// and again on every reconnect attempt, so a Dialer must be safe to call
// repeatedly and must not retain state from a previous attempt.
type Dialer interface {
	Dial() (ReadWriteCloser, error)
}

// ReadWriteCloser is the minimal duplex stream a Dialer hands back.
type ReadWriteCloser interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// SerialConfig configures a direct serial-port dial.
type SerialConfig struct {
	Port     string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string // "none", "odd", "even"
}

// DefaultSerialConfig matches the wire-protocol defaults in the embedding
// API's transport configuration.
func DefaultSerialConfig(port string) SerialConfig {
	return SerialConfig{Port: port, BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "none"}
}

// TCPConfig configures a TCP/WiFi bridge dial.
type TCPConfig struct {
	Host    string
	Port    int
	Timeout int // milliseconds
}

// DefaultTCPConfig matches the wire-protocol defaults.
func DefaultTCPConfig(host string) TCPConfig {
	return TCPConfig{Host: host, Port: 23, Timeout: 5000}
}

// BluetoothConfig configures a Bluetooth RFCOMM dial. No library in the
// example corpus implements Bluetooth transport, so DialBluetooth always
// returns ErrUnsupportedPlatform; the config shape is kept so callers can
// still construct and pass it through without a build break.
type BluetoothConfig struct {
	Address string
	Channel int
}

// DefaultBluetoothConfig matches the wire-protocol defaults.
func DefaultBluetoothConfig(addr string) BluetoothConfig {
	return BluetoothConfig{Address: addr, Channel: 1}
}

// WSBridgeConfig configures a dial against a serial-to-websocket bridge
// (the role the teacher's bespoke spjs package played, folded here into
// one more duplex stream rather than a parallel JSON-envelope protocol).
type WSBridgeConfig struct {
	URL string
}
