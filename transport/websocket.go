package transport

import (
	"sync"

	"github.com/gorilla/websocket"
)

// WSBridgeDialer opens a websocket connection to a serial-to-websocket
// bridge, folding the role the teacher's bespoke spjs JSON-envelope
// package played into one more duplex byte stream (see DESIGN.md for why
// spjs itself was retired rather than kept alongside this).
type WSBridgeDialer struct {
	Config WSBridgeConfig
}

// DialWebSocketBridge returns a Dialer for the given bridge URL.
func DialWebSocketBridge(cfg WSBridgeConfig) *WSBridgeDialer {
	return &WSBridgeDialer{Config: cfg}
}

func (d *WSBridgeDialer) Dial() (ReadWriteCloser, error) {
	conn, _, err := websocket.DefaultDialer.Dial(d.Config.URL, nil)
	if err != nil {
		return nil, err
	}
	return &wsStream{conn: conn}, nil
}

// wsStream adapts gorilla/websocket's message-oriented Conn to the plain
// io.ReadWriteCloser Link expects, buffering the tail of a message that
// didn't fit in the caller's read slice.
type wsStream struct {
	conn *websocket.Conn

	mx  sync.Mutex
	buf []byte
}

func (s *wsStream) Read(p []byte) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	for len(s.buf) == 0 {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		s.buf = data
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
