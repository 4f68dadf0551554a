// Package wsrpc serves a motor controller over websocket.
//
// Three endpoints are exposed, each speaking JSON text messages:
//
//	/rpc     requests ({"id","method","params"}) answered with replies
//	         ({"id","result","error"}) in the order they were handled
//	/status  status broadcasts ({"type":"status","status":{...}})
//	/diag    diagnostic requests served outside the step loop
//
// Requests on /rpc are queued and handled by the controller step loop
// through Drain.
package wsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/arloliu/go-motor/controller"
	"github.com/arloliu/go-motor/internal/pool"
	"github.com/arloliu/go-motor/internal/task"
	"github.com/arloliu/go-motor/logger"
	"github.com/arloliu/go-motor/motor"
	"github.com/arloliu/go-motor/rpc"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	uuid "github.com/satori/go.uuid"
)

// Diagnostics is served on the /diag endpoint.
type Diagnostics interface {
	Status(fresh bool) (motor.Snapshot, error)
	Invalidate()
	StepCounter() uint64
	State() string
	Metrics() map[string]uint64
	Extensions() []controller.ExtensionInfo
	Exec(name string, args []float64) (any, error)
	Snapshot(prefix string) map[string]any
}

// StatusMessage is broadcast to /status clients on every publish.
type StatusMessage struct {
	Type   string         `json:"type"`
	Status motor.Snapshot `json:"status"`
}

// Server is a websocket front end for a MotorController. It implements
// controller.RequestChannel and controller.Publisher.
type Server struct {
	cfg      *Config
	logger   logger.Logger
	requests *rpc.QueueChannel
	diag     Diagnostics
	upgrader websocket.Upgrader
	clients  *xsync.MapOf[string, *client]
	taskMgr  *task.Manager
	http     *http.Server
	ln       net.Listener
	dropped  atomic.Uint64
	closed   atomic.Bool
}

var (
	_ controller.RequestChannel = (*Server)(nil)
	_ controller.Publisher      = (*Server)(nil)
)

// New creates a server. Its goroutines end when ctx is done or Close is
// called.
func New(ctx context.Context, cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("wsrpc: config is nil")
	}

	s := &Server{
		cfg:      cfg,
		logger:   cfg.logger,
		requests: rpc.NewQueueChannel(),
		clients:  xsync.NewMapOf[string, *client](),
		taskMgr:  task.NewManager(ctx, cfg.logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.writeTimeout,
	}

	return s, nil
}

// Handler returns the HTTP handler serving the websocket endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.serveRPC)
	mux.HandleFunc("/status", s.serveStatus)
	mux.HandleFunc("/diag", s.serveDiag)

	return mux
}

// SetDiagnostics enables the /diag endpoint. It must be called before
// Start.
func (s *Server) SetDiagnostics(d Diagnostics) { s.diag = d }

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.addr)
	if err != nil {
		return err
	}
	s.ln = ln

	err = s.taskMgr.Go("http", func(context.Context) {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	})
	if err != nil {
		_ = ln.Close()
		return err
	}
	s.logger.Info("websocket server listening", "addr", ln.Addr().String())

	return nil
}

// Addr returns the listening address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}

	return s.cfg.addr
}

// Close disconnects every client and stops the server.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.taskMgr.Stop()
	err := s.http.Close()

	s.clients.Range(func(_ string, c *client) bool {
		c.close()
		return true
	})
	s.taskMgr.Wait()
	s.logger.Info("websocket server closed")

	return err
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int { return s.clients.Size() }

// Dropped returns the number of messages dropped on full send queues.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Drain hands the queued requests to handle. It implements
// controller.RequestChannel.
func (s *Server) Drain(handle func(rpc.Request) rpc.Reply) int {
	return s.requests.Drain(handle)
}

// PublishStatus broadcasts snap to every /status client. It implements
// controller.Publisher.
func (s *Server) PublishStatus(snap motor.Snapshot) error {
	data, err := json.Marshal(StatusMessage{Type: "status", Status: snap})
	if err != nil {
		return err
	}

	s.clients.Range(func(_ string, c *client) bool {
		if c.kind == kindStatus {
			c.send(data)
		}
		return true
	})

	return nil
}

// accept upgrades the connection, registers the client and starts its
// write pump. It returns nil when the connection was refused.
func (s *Server) accept(w http.ResponseWriter, r *http.Request, kind string) *client {
	if s.closed.Load() {
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return nil
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return nil
	}

	c := s.newClient(conn, kind)
	if err := s.taskMgr.Go("write-"+c.id, func(ctx context.Context) { c.writePump(ctx.Done()) }); err != nil {
		c.close()
		return nil
	}

	s.clients.Store(c.id, c)
	if s.closed.Load() {
		s.release(c)
		return nil
	}
	s.logger.Info("client connected", "client", c.id, "kind", kind, "remote", r.RemoteAddr)

	return c
}

func (s *Server) release(c *client) {
	s.clients.Delete(c.id)
	c.close()
	s.logger.Info("client disconnected", "client", c.id, "kind", c.kind)
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	c := s.accept(w, r, kindStatus)
	if c == nil {
		return
	}
	defer s.release(c)

	c.readPump(nil)
}

type pendingReply struct {
	req   rpc.Request
	reply <-chan rpc.Reply
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	c := s.accept(w, r, kindRPC)
	if c == nil {
		return
	}
	defer s.release(c)

	pending := make(chan pendingReply, s.cfg.sendQueueSize)
	err := task.StartConsumer(s.taskMgr, "reply-"+c.id, func(p pendingReply) bool {
		return s.forwardReply(c, p)
	}, nil, pending)
	if err != nil {
		return
	}
	defer close(pending)

	c.readPump(func(data []byte) {
		var req rpc.Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.send(s.encode(rpc.Failure(req, rpc.Errorf(rpc.CodeBadParams, "malformed request: %v", err))))
			return
		}
		if req.ID == "" {
			req.ID = uuid.NewV4().String()
		}

		select {
		case pending <- pendingReply{req: req, reply: s.requests.Submit(req)}:
		case <-c.done:
		}
	})
}

// forwardReply waits for the reply to p and queues it to c. Replies are
// forwarded in submission order.
func (s *Server) forwardReply(c *client, p pendingReply) bool {
	timer := pool.GetTimer(s.cfg.requestTimeout)
	defer pool.PutTimer(timer)

	var reply rpc.Reply
	select {
	case reply = <-p.reply:
	case <-timer.C:
		s.logger.Warn("request timed out", "client", c.id, "id", p.req.ID, "method", p.req.Method)
		reply = rpc.Failure(p.req, rpc.Errorf(rpc.CodeInternal, "no reply within %v", s.cfg.requestTimeout))
	case <-c.done:
		return false
	}

	c.send(s.encode(reply))

	return true
}

func (s *Server) encode(reply rpc.Reply) []byte {
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("cannot encode reply", "id", reply.ID, "error", err)
		data, _ = json.Marshal(rpc.Failure(rpc.Request{ID: reply.ID}, rpc.Errorf(rpc.CodeInternal, "cannot encode result: %v", err)))
	}

	return data
}
