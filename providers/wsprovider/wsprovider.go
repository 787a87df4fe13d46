// Package wsprovider is a websocket transport for Document Send bytes: it
// carries opaque transaction bytes in both directions and retries the
// client side's dial with exponential backoff until it connects. A
// connection that drops later is not redialed.
package wsprovider

import (
	"context"
	"net/http"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
)

// Upgrader accepts connections from any origin.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Peer wraps one websocket connection — server-accepted or client-dialed —
// with a bounded outgoing queue, carrying a document's wire transaction
// bytes rather than JSON-encoded ops.
type Peer struct {
	conn *websocket.Conn
	send chan []byte
}

// NewPeer wraps an already-established connection.
func NewPeer(conn *websocket.Conn) *Peer {
	return &Peer{conn: conn, send: make(chan []byte, 256)}
}

// Enqueue queues b for delivery. It reports false, without blocking, if the
// peer's queue is full — the caller should then treat the peer as dead and
// close it.
func (p *Peer) Enqueue(b []byte) bool {
	select {
	case p.send <- b:
		return true
	default:
		return false
	}
}

// Close closes the underlying connection. The send queue is left open.
func (p *Peer) Close() error {
	return p.conn.Close()
}

// ReadLoop reads binary messages until the connection errors or closes,
// invoking onMessage with each payload. Payloads are handed straight to
// Document.Receive rather than decoded as JSON ops.
func (p *Peer) ReadLoop(onMessage func([]byte) error) error {
	for {
		_, msg, err := p.conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := onMessage(msg); err != nil {
			return err
		}
	}
}

// WriteLoop drains the send queue to the connection until ctx is canceled
// or the queue is closed.
func (p *Peer) WriteLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-p.send:
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return nil
			}
			if err := p.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return err
			}
		}
	}
}

// DialWithBackoff repeatedly dials url with exponentially increasing delay
// until it connects or ctx is canceled.
func DialWithBackoff(ctx context.Context, url string) (*Peer, error) {
	var conn *websocket.Conn
	dial := func() error {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // retry until ctx is canceled, never give up on its own
	if err := backoff.Retry(dial, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return NewPeer(conn), nil
}
