package transport

import (
	"context"

	"github.com/coder/websocket"
)

// wsChannel adapts a coder/websocket connection to Channel. Websocket
// provides only a single reliable, ordered stream, so it always reports
// Reliable() == true and is used for the Control purpose; Bulk requests
// against a WebSocketPeer fail with ErrChannelUnavailable and callers fall
// back to routing everything through Control, per §4.6.
type wsChannel struct {
	conn *websocket.Conn
}

func (c *wsChannel) Send(ctx context.Context, msg []byte) error {
	return c.conn.Write(ctx, websocket.MessageBinary, msg)
}

func (c *wsChannel) Recv(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *wsChannel) Reliable() bool { return true }

func (c *wsChannel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// WebSocketPeer is the relay-mode fallback transport: a single reliable
// channel standing in for both Control and Bulk. It is wrapped in a
// chunkingChannel since a relay hop commonly enforces a frame size limit
// well below a full Snapshot/SnapshotRange payload (§4.6).
type WebSocketPeer struct {
	control Channel
}

func NewWebSocketPeer(conn *websocket.Conn) *WebSocketPeer {
	return &WebSocketPeer{control: newChunkingChannel(&wsChannel{conn: conn}, Control.String())}
}

func (p *WebSocketPeer) Channel(purpose Purpose) (Channel, error) {
	if purpose == Control {
		return p.control, nil
	}
	return nil, ErrChannelUnavailable
}

func (p *WebSocketPeer) Close() error {
	return p.control.Close()
}
