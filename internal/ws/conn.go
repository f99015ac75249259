package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/urosperisic/chatapp/pkg/metrics"
)

// Conn binds one WebSocket transport to one authenticated identity and
// one room. It owns the transport; the hub only holds membership links.
type Conn struct {
	ws   *websocket.Conn
	out  chan []byte
	id   string
	user Identity
	room string
}

func newConn(ws *websocket.Conn, room string, user Identity) *Conn {
	return &Conn{
		ws:   ws,
		out:  make(chan []byte, 256),
		id:   uuid.NewString(),
		user: user,
		room: room,
	}
}

// send queues an event frame without blocking. A full buffer means the
// member is too slow or tearing down; the frame is dropped and counted,
// never propagated as an error to the publisher.
func (c *Conn) send(b []byte) bool {
	select {
	case c.out <- b:
		return true
	default:
		metrics.DeliveriesDropped.Inc()
		return false
	}
}

// readText blocks until the next parseable inbound envelope and returns
// its message text. Frames that are not text/binary or not valid JSON
// are skipped. Returns false when the connection is gone.
func (c *Conn) readText(ctx context.Context) (string, bool) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return "", false
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			continue
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		return in.Message, true
	}
}

// writeLoop drains the out channel and keeps the transport alive with
// periodic pings. Exits when ctx is cancelled.
func (c *Conn) writeLoop(ctx context.Context) {
	t := time.NewTicker(20 * time.Second)
	defer t.Stop()

	for {
		select {
		case b := <-c.out:
			_ = c.ws.Write(ctx, websocket.MessageText, b)
		case <-t.C:
			_ = c.ws.Ping(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Conn) close(code websocket.StatusCode, reason string) {
	_ = c.ws.Close(code, reason)
}
