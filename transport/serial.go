package transport

import (
	"fmt"

	"github.com/tarm/serial"
)

// SerialDialer opens a direct serial-port connection via
// github.com/tarm/serial on each Dial call, so Link can redial it on
// reconnect without holding a stale *serial.Port.
type SerialDialer struct {
	Config SerialConfig
}

// DialSerial returns a Dialer for the given serial configuration.
func DialSerial(cfg SerialConfig) *SerialDialer {
	return &SerialDialer{Config: cfg}
}

func (d *SerialDialer) Dial() (ReadWriteCloser, error) {
	parity, err := parseParity(d.Config.Parity)
	if err != nil {
		return nil, err
	}

	c := &serial.Config{
		Name:     d.Config.Port,
		Baud:     d.Config.BaudRate,
		Size:     byte(d.Config.DataBits),
		StopBits: serial.StopBits(d.Config.StopBits),
		Parity:   parity,
	}
	return serial.OpenPort(c)
}

func parseParity(p string) (serial.Parity, error) {
	switch p {
	case "", "none":
		return serial.ParityNone, nil
	case "odd":
		return serial.ParityOdd, nil
	case "even":
		return serial.ParityEven, nil
	default:
		return 0, fmt.Errorf("transport: unknown parity %q", p)
	}
}
