package protocol

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// sendQueueDepth bounds the per-connection outbound queue (spec section
// 9's "per-connection bounded send queues and back-pressure", replacing
// the source's ad hoc broadcast-by-iterating-connections). A connection
// that cannot keep up is dropped rather than let the queue, and the
// memory behind it, grow without bound.
const sendQueueDepth = 64

// Connection holds one WebSocket peer's state: the spec section 4.6
// per-connection fields (CurrentBoard, CurrentPageID, ClientID) plus the
// bounded outbound queue and its writer goroutine. Grounded on
// scm/network.go's upgrade + read-loop + sendmutex-guarded write, with
// the single mutex-guarded write replaced by an explicit queue so a slow
// reader can be detected and disconnected instead of blocking the
// broadcaster.
type Connection struct {
	ws *websocket.Conn

	// ClientID, CurrentBoard and CurrentPageID are only ever touched by
	// the single goroutine running this connection's read loop
	// (dispatch is not concurrent with itself for a given connection),
	// so no lock guards them.
	ClientID      string
	CurrentBoard  string
	CurrentPageID string

	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnection wraps an upgraded WebSocket connection and starts its
// write pump.
func NewConnection(ws *websocket.Conn) *Connection {
	c := &Connection{
		ws:     ws,
		send:   make(chan []byte, sendQueueDepth),
		closed: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send marshals msg and enqueues it for delivery. It never blocks: a full
// queue closes the connection rather than apply back-pressure to the
// caller, since the caller is typically a broadcast fan-out serving many
// other peers.
func (c *Connection) Send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("protocol: marshaling outbound message: %w", err)
	}
	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return fmt.Errorf("protocol: connection closed")
	default:
		log.Printf("protocol: send queue full for client %s, dropping connection", c.ClientID)
		c.Close()
		return fmt.Errorf("protocol: send queue full")
	}
}

func (c *Connection) writePump() {
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Close tears down the connection exactly once: safe to call from the
// read loop, the write pump, or a broadcaster that hit a full queue.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

// ReadMessage blocks for the next text frame, surfacing a close event as
// (nil, nil, false) the way the read loop expects to terminate cleanly.
func (c *Connection) ReadMessage() (data []byte, err error, ok bool) {
	messageType, msg, err := c.ws.ReadMessage()
	if err != nil {
		if _, isClose := err.(*websocket.CloseError); isClose {
			return nil, nil, false
		}
		return nil, err, false
	}
	if messageType != websocket.TextMessage {
		return nil, nil, true
	}
	return msg, nil, true
}
