package transport

// BluetoothDialer is a documented stub: no Bluetooth library appears
// anywhere in the example corpus, so Dial always fails rather than
// silently falling back to something else.
type BluetoothDialer struct {
	Config BluetoothConfig
}

// DialBluetooth returns a Dialer that always fails with
// ErrUnsupportedPlatform.
func DialBluetooth(cfg BluetoothConfig) *BluetoothDialer {
	return &BluetoothDialer{Config: cfg}
}

func (d *BluetoothDialer) Dial() (ReadWriteCloser, error) {
	return nil, ErrUnsupportedPlatform
}
