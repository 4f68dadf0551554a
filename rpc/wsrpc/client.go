package wsrpc

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	uuid "github.com/satori/go.uuid"
)

// Endpoint kinds.
const (
	kindRPC    = "rpc"
	kindStatus = "status"
	kindDiag   = "diag"
)

// client is one websocket connection. Outgoing messages are queued and
// written by the client's write pump; reads happen on the HTTP handler
// goroutine.
type client struct {
	id     string
	kind   string
	conn   *websocket.Conn
	server *Server
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *Server) newClient(conn *websocket.Conn, kind string) *client {
	return &client{
		id:     uuid.NewV4().String(),
		kind:   kind,
		conn:   conn,
		server: s,
		sendCh: make(chan []byte, s.cfg.sendQueueSize),
		done:   make(chan struct{}),
	}
}

// send queues msg without blocking. It reports false when the message was
// dropped because the queue is full or the client is closed.
func (c *client) send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.sendCh <- msg:
		return true
	case <-c.done:
		return false
	default:
		c.server.dropped.Add(1)
		c.server.logger.Warn("dropping message, send queue full", "client", c.id, "kind", c.kind)

		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump calls handle for every incoming message until the connection
// fails or is closed.
func (c *client) readPump(handle func(data []byte)) {
	cfg := c.server.cfg

	c.conn.SetReadLimit(cfg.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * cfg.pingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * cfg.pingInterval))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debug("websocket read error", "client", c.id, "error", err)
			}
			return
		}

		if handle != nil {
			handle(data)
		}
	}
}

// writePump writes queued messages and keepalive pings until the client
// or the server is closed.
func (c *client) writePump(stop <-chan struct{}) {
	cfg := c.server.cfg

	ticker := time.NewTicker(cfg.pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.server.logger.Debug("websocket write error", "client", c.id, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-stop:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(cfg.writeTimeout))
			return

		case <-c.done:
			return
		}
	}
}
