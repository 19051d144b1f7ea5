package channel

import (
	"time"

	"github.com/gorilla/websocket"
)

// #region websocket-dialer

// WebsocketDialer connects to the engine's websocket endpoint.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
}

func (d WebsocketDialer) Dial(url string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	wd := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := wd.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// #endregion
