package wsrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/arloliu/go-motor/controller"
	"github.com/arloliu/go-motor/device/gcs"
	"github.com/arloliu/go-motor/logger"
	"github.com/arloliu/go-motor/rpc"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	os.Exit(m.Run())
}

type wireReply struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpc.Error      `json:"error"`
}

type testEnv struct {
	server *Server
	ctrl   *controller.MotorController
}

// newTestEnv serves a one axis simulated stage. The step loop only runs
// when run is true.
func newTestEnv(t *testing.T, run bool, opts ...Option) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	dev, err := gcs.New("stage", 1, gcs.NewSimBinding(1, 0, 25))
	require.NoError(t, err)

	cfg, err := NewConfig("127.0.0.1:0", opts...)
	require.NoError(t, err)

	srv, err := New(ctx, cfg)
	require.NoError(t, err)

	ctrl, err := controller.New(dev, srv, srv, nil)
	require.NoError(t, err)
	srv.SetDiagnostics(ctrl.Diagnostics())
	require.NoError(t, srv.Start())

	env := &testEnv{server: srv, ctrl: ctrl}

	done := make(chan struct{})
	if run {
		go func() {
			defer close(done)
			_ = controller.NewRunner(logger.Of("runner")).Run(ctx, ctrl, 5*time.Millisecond)
		}()
	} else {
		close(done)
	}

	t.Cleanup(func() {
		cancel()
		<-done
		_ = srv.Close()
	})

	return env
}

func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+e.server.Addr()+path, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func call(t *testing.T, conn *websocket.Conn, id string, method string, params string) wireReply {
	t.Helper()

	req := map[string]any{"id": id, "method": method}
	if params != "" {
		req["params"] = json.RawMessage(params)
	}
	require.NoError(t, conn.WriteJSON(req))

	return readReply(t, conn)
}

func readReply(t *testing.T, conn *websocket.Conn) wireReply {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var reply wireReply
	require.NoError(t, conn.ReadJSON(&reply))

	return reply
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	require.Error(t, err)
}

func TestNewConfig(t *testing.T) {
	_, err := NewConfig("")
	require.Error(t, err)

	_, err = NewConfig("127.0.0.1:0", WithSendQueueSize(0))
	require.Error(t, err)

	cfg, err := NewConfig("127.0.0.1:0", WithRequestTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.RequestTimeout())
	assert.Equal(t, "127.0.0.1:0", cfg.Addr())
}

func TestRPC_RoundTrip(t *testing.T) {
	env := newTestEnv(t, true)
	conn := env.dial(t, "/rpc")

	reply := call(t, conn, "1", controller.MethodName, "")
	require.Nil(t, reply.Error)
	assert.Equal(t, "1", reply.ID)
	assert.JSONEq(t, `"stage"`, string(reply.Result))

	reply = call(t, conn, "2", controller.MethodNAxes, "")
	require.Nil(t, reply.Error)
	assert.JSONEq(t, `1`, string(reply.Result))

	reply = call(t, conn, "3", controller.MethodHome, `{"axis":1}`)
	require.Nil(t, reply.Error)

	reply = call(t, conn, "4", controller.MethodMoveTo, `{"axis":1,"position":30}`)
	require.NotNil(t, reply.Error)
	assert.Equal(t, rpc.CodeOutOfRange, reply.Error.Code)

	reply = call(t, conn, "5", controller.MethodPosition, `{"axis":2}`)
	require.NotNil(t, reply.Error)
	assert.Equal(t, rpc.CodeInvalidAxis, reply.Error.Code)

	reply = call(t, conn, "6", "spin", "")
	require.NotNil(t, reply.Error)
	assert.Equal(t, rpc.CodeUnknownMethod, reply.Error.Code)
}

func TestRPC_RepliesInOrder(t *testing.T) {
	env := newTestEnv(t, true)
	conn := env.dial(t, "/rpc")

	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		require.NoError(t, conn.WriteJSON(map[string]any{"id": id, "method": controller.MethodStepCounter}))
	}

	for _, id := range ids {
		reply := readReply(t, conn)
		assert.Equal(t, id, reply.ID)
		assert.Nil(t, reply.Error)
	}
}

func TestRPC_AssignsMissingID(t *testing.T) {
	env := newTestEnv(t, true)
	conn := env.dial(t, "/rpc")

	reply := call(t, conn, "", controller.MethodName, "")
	require.Nil(t, reply.Error)
	assert.NotEmpty(t, reply.ID)
}

func TestRPC_MalformedRequest(t *testing.T) {
	env := newTestEnv(t, true)
	conn := env.dial(t, "/rpc")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	reply := readReply(t, conn)
	require.NotNil(t, reply.Error)
	assert.Equal(t, rpc.CodeBadParams, reply.Error.Code)

	reply = call(t, conn, "1", controller.MethodPosition, `{"axle":1}`)
	require.NotNil(t, reply.Error)
	assert.Equal(t, rpc.CodeBadParams, reply.Error.Code)
}

func TestRPC_Timeout(t *testing.T) {
	env := newTestEnv(t, false, WithRequestTimeout(50*time.Millisecond))
	conn := env.dial(t, "/rpc")

	reply := call(t, conn, "1", controller.MethodName, "")
	require.NotNil(t, reply.Error)
	assert.Equal(t, "1", reply.ID)
	assert.Equal(t, rpc.CodeInternal, reply.Error.Code)
}

func TestRPC_Terminate(t *testing.T) {
	env := newTestEnv(t, true)
	conn := env.dial(t, "/rpc")

	reply := call(t, conn, "1", controller.MethodTerminate, "")
	require.Nil(t, reply.Error)

	assert.Eventually(t, env.ctrl.IsTerminated, time.Second, 5*time.Millisecond)
}

func TestStatus_Broadcast(t *testing.T) {
	env := newTestEnv(t, true)
	first := env.dial(t, "/status")
	second := env.dial(t, "/status")

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		var msg StatusMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "status", msg.Type)
		assert.Equal(t, "stage", msg.Status.Device)
		require.Len(t, msg.Status.Axes, 1)
		assert.Equal(t, 1, msg.Status.Axes[0].Axis)
	}
}

func TestDiag(t *testing.T) {
	env := newTestEnv(t, true)
	conn := env.dial(t, "/diag")

	reply := call(t, conn, "1", DiagStatus, `{"fresh":true}`)
	require.Nil(t, reply.Error)
	assert.Contains(t, string(reply.Result), `"device":"stage"`)

	reply = call(t, conn, "2", DiagState, "")
	require.Nil(t, reply.Error)
	assert.JSONEq(t, `"Running"`, string(reply.Result))

	reply = call(t, conn, "3", DiagMetrics, "")
	require.Nil(t, reply.Error)
	var metrics map[string]uint64
	require.NoError(t, json.Unmarshal(reply.Result, &metrics))
	assert.Contains(t, metrics, "step")
	assert.Contains(t, metrics, "ws.clients")

	reply = call(t, conn, "4", DiagExtensions, "")
	require.Nil(t, reply.Error)
	assert.Contains(t, string(reply.Result), "set_velocity")

	reply = call(t, conn, "5", DiagExec, `{"name":"velocity","args":[1]}`)
	require.Nil(t, reply.Error)
	assert.JSONEq(t, `1`, string(reply.Result))

	reply = call(t, conn, "6", DiagExec, `{"name":"warp","args":[]}`)
	require.NotNil(t, reply.Error)

	reply = call(t, conn, "7", DiagExec, `{}`)
	require.NotNil(t, reply.Error)
	assert.Equal(t, rpc.CodeBadParams, reply.Error.Code)

	reply = call(t, conn, "8", DiagSnapshot, "")
	require.Nil(t, reply.Error)
	assert.Contains(t, string(reply.Result), "motor.")

	reply = call(t, conn, "9", "reboot", "")
	require.NotNil(t, reply.Error)
	assert.Equal(t, rpc.CodeUnknownMethod, reply.Error.Code)
}

func TestDiag_Disabled(t *testing.T) {
	cfg, err := NewConfig("127.0.0.1:0")
	require.NoError(t, err)
	srv, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/diag", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClose_DisconnectsClients(t *testing.T) {
	env := newTestEnv(t, false)
	conn := env.dial(t, "/status")

	assert.Eventually(t, func() bool { return env.server.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, env.server.Close())
	require.NoError(t, env.server.Close())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Eventually(t, func() bool { return env.server.Clients() == 0 }, time.Second, 5*time.Millisecond)

	_, _, err = websocket.DefaultDialer.Dial("ws://"+env.server.Addr()+"/status", nil)
	require.Error(t, err)
}
