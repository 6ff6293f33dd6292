package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alucardeht/ytscribe-mcp/internal/transport"
	"github.com/alucardeht/ytscribe-mcp/pkg/protocol"
)

type replyFunc func(msg protocol.Message) []protocol.Message

// fakeConn is an in-memory Conn whose peer answers each sent message with
// whatever reply returns.
type fakeConn struct {
	startErr error
	reply    replyFunc

	mu    sync.Mutex
	sent  []protocol.Message
	stops int

	inbox     chan protocol.Message
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(reply replyFunc) *fakeConn {
	return &fakeConn{
		reply:  reply,
		inbox:  make(chan protocol.Message, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Start(string, ...string) error {
	return c.startErr
}

func (c *fakeConn) Send(msg protocol.Message) error {
	select {
	case <-c.closed:
		return transport.ErrConnectionClosed
	default:
	}

	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()

	if c.reply != nil {
		for _, r := range c.reply(msg) {
			c.inbox <- r
		}
	}
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) (protocol.Message, error) {
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-c.closed:
		return nil, transport.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Stop(context.Context) error {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Sent() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.sent...)
}

func (c *fakeConn) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

func result(t *testing.T, id jsonrpc2.ID, v interface{}) *protocol.Response {
	t.Helper()
	resp, err := protocol.NewResult(id, v)
	require.NoError(t, err)
	return resp
}

// server answers like a well-behaved tool server exposing the given tools.
// override may replace the reply for any method.
func server(t *testing.T, tools []string, override map[string]replyFunc) replyFunc {
	return func(msg protocol.Message) []protocol.Message {
		method := ""
		switch m := msg.(type) {
		case *protocol.Request:
			method = m.Method
		case *protocol.Notification:
			method = m.Method
		}
		if fn, ok := override[method]; ok {
			return fn(msg)
		}

		req, ok := msg.(*protocol.Request)
		if !ok {
			return nil
		}
		switch req.Method {
		case protocol.MethodInitialize:
			return []protocol.Message{result(t, req.ID, protocol.InitializeResult{
				ProtocolVersion: "2024-11-05",
				ServerInfo:      protocol.ImplementationInfo{Name: "fake", Version: "1"},
			})}
		case protocol.MethodListTools:
			descs := make([]protocol.ToolDescriptor, len(tools))
			for i, name := range tools {
				descs[i] = protocol.ToolDescriptor{Name: name}
			}
			return []protocol.Message{result(t, req.ID, protocol.ListToolsResult{Tools: descs})}
		case protocol.MethodCallTool:
			var params protocol.CallToolParams
			require.NoError(t, json.Unmarshal(req.Params, &params))
			for _, name := range tools {
				if name == params.Name {
					return []protocol.Message{result(t, req.ID, protocol.CallToolResult{
						Content: []protocol.ContentItem{protocol.TextContent("called " + name + " with " + string(params.Arguments))},
					})}
				}
			}
			return []protocol.Message{protocol.NewError(&req.ID, jsonrpc2.CodeMethodNotFound, "unknown tool: "+params.Name)}
		}
		return nil
	}
}

type dialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	make  func() *fakeConn
}

func (d *dialer) Dial() Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.make()
	d.conns = append(d.conns, c)
	return c
}

func (d *dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *dialer) Last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func newTestSession(reply replyFunc, cfg Config) (*Session, *dialer) {
	d := &dialer{make: func() *fakeConn { return newFakeConn(reply) }}
	cfg.Command = "fake-server"
	cfg.Dial = d.Dial
	return NewSession(cfg), d
}

func readySession(t *testing.T, reply replyFunc, cfg Config) (*Session, *dialer) {
	t.Helper()
	s, d := newTestSession(reply, cfg)
	require.NoError(t, s.Connect(context.Background()))
	require.Equal(t, StateReady, s.State())
	t.Cleanup(func() { s.Disconnect(context.Background()) })
	return s, d
}

var allTools = []string{"get_youtube_transcript", "search_youtube_videos", "get_channel_info"}

func TestConnectHandshake(t *testing.T) {
	s, d := readySession(t, server(t, allTools, nil), Config{})

	assert.ElementsMatch(t, allTools, s.ToolNames())
	assert.Equal(t, "fake", s.ServerInfo().Name)
	assert.NotEmpty(t, s.ID())

	sent := d.Last().Sent()
	require.Len(t, sent, 3)

	init, ok := sent[0].(*protocol.Request)
	require.True(t, ok)
	assert.Equal(t, protocol.MethodInitialize, init.Method)
	assert.Equal(t, uint64(1), init.ID.Num)

	var params protocol.InitializeParams
	require.NoError(t, json.Unmarshal(init.Params, &params))
	assert.Equal(t, "2024-11-05", params.ProtocolVersion)
	assert.Equal(t, "ytscribe", params.ClientInfo.Name)
	assert.Contains(t, params.Capabilities, "tools")

	notif, ok := sent[1].(*protocol.Notification)
	require.True(t, ok)
	assert.Equal(t, protocol.MethodInitialized, notif.Method)

	list, ok := sent[2].(*protocol.Request)
	require.True(t, ok)
	assert.Equal(t, protocol.MethodListTools, list.Method)
	assert.Equal(t, uint64(2), list.ID.Num)
}

func TestConnectWhenReadyIsNoop(t *testing.T) {
	s, d := readySession(t, server(t, allTools, nil), Config{})
	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, 1, d.Count())
}

func TestConnectRejectsNullInitializeResult(t *testing.T) {
	reply := server(t, allTools, map[string]replyFunc{
		protocol.MethodInitialize: func(msg protocol.Message) []protocol.Message {
			req := msg.(*protocol.Request)
			return []protocol.Message{&protocol.Response{ID: &req.ID, Result: json.RawMessage("null")}}
		},
	})
	s, d := newTestSession(reply, Config{})

	err := s.Connect(context.Background())
	require.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, 1, d.Last().Stops())

	// no initialized notification and no tools/list after a bad initialize
	assert.Len(t, d.Last().Sent(), 1)

	_, err = s.Invoke(context.Background(), "get_youtube_transcript", nil)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Len(t, d.Last().Sent(), 1)
	assert.Equal(t, 1, d.Count())
}

func TestConnectRemoteErrorOnInitialize(t *testing.T) {
	reply := server(t, allTools, map[string]replyFunc{
		protocol.MethodInitialize: func(msg protocol.Message) []protocol.Message {
			req := msg.(*protocol.Request)
			return []protocol.Message{protocol.NewError(&req.ID, jsonrpc2.CodeInvalidRequest, "nope")}
		},
	})
	s, _ := newTestSession(reply, Config{})

	err := s.Connect(context.Background())
	require.ErrorIs(t, err, ErrHandshakeFailed)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, int64(jsonrpc2.CodeInvalidRequest), remote.Code)
}

func TestConnectRequiresToolsArray(t *testing.T) {
	reply := server(t, allTools, map[string]replyFunc{
		protocol.MethodListTools: func(msg protocol.Message) []protocol.Message {
			req := msg.(*protocol.Request)
			return []protocol.Message{result(t, req.ID, map[string]string{"other": "x"})}
		},
	})
	s, _ := newTestSession(reply, Config{})

	assert.ErrorIs(t, s.Connect(context.Background()), ErrHandshakeFailed)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestConnectCanBeRetried(t *testing.T) {
	var mu sync.Mutex
	fail := true
	reply := server(t, allTools, map[string]replyFunc{
		protocol.MethodInitialize: func(msg protocol.Message) []protocol.Message {
			mu.Lock()
			defer mu.Unlock()
			req := msg.(*protocol.Request)
			if fail {
				fail = false
				return []protocol.Message{protocol.NewError(&req.ID, jsonrpc2.CodeInternalError, "warming up")}
			}
			return []protocol.Message{result(t, req.ID, protocol.InitializeResult{ProtocolVersion: "2024-11-05"})}
		},
	})
	s, d := newTestSession(reply, Config{})
	defer s.Disconnect(context.Background())

	require.Error(t, s.Connect(context.Background()))
	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, 2, d.Count())
}

func TestConnectSpawnFailure(t *testing.T) {
	d := &dialer{make: func() *fakeConn {
		c := newFakeConn(nil)
		c.startErr = &transport.SpawnError{Command: "missing", Err: errors.New("not found")}
		return c
	}}
	s := NewSession(Config{Command: "missing", Dial: d.Dial})

	err := s.Connect(context.Background())
	var spawnErr *transport.SpawnError
	assert.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestConnectHandshakeTimeout(t *testing.T) {
	reply := server(t, allTools, map[string]replyFunc{
		protocol.MethodInitialize: func(protocol.Message) []protocol.Message { return nil },
	})
	s, _ := newTestSession(reply, Config{HandshakeTimeout: 50 * time.Millisecond})

	err := s.Connect(context.Background())
	assert.ErrorIs(t, err, ErrHandshakeFailed)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestInvokeBeforeConnect(t *testing.T) {
	s, d := newTestSession(server(t, allTools, nil), Config{})

	_, err := s.Invoke(context.Background(), "get_channel_info", nil)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Zero(t, d.Count())
}

func TestInvokeRoundTrip(t *testing.T) {
	s, d := readySession(t, server(t, allTools, nil), Config{})

	res, err := s.Invoke(context.Background(), "get_youtube_transcript", map[string]interface{}{"url": "https://youtu.be/abcdefghijk"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, `called get_youtube_transcript with {"url":"https://youtu.be/abcdefghijk"}`, res.Text())

	res, err = s.Invoke(context.Background(), "search_youtube_videos", nil)
	require.NoError(t, err)
	assert.Equal(t, "called search_youtube_videos with {}", res.Text())

	sent := d.Last().Sent()
	require.Len(t, sent, 5)
	assert.Equal(t, uint64(3), sent[3].(*protocol.Request).ID.Num)
	assert.Equal(t, uint64(4), sent[4].(*protocol.Request).ID.Num)
}

func TestInvokeRemoteErrorKeepsSession(t *testing.T) {
	s, _ := readySession(t, server(t, allTools, nil), Config{})

	_, err := s.Invoke(context.Background(), "no_such_tool", nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, int64(jsonrpc2.CodeMethodNotFound), remote.Code)
	assert.Contains(t, remote.Message, "no_such_tool")

	assert.Equal(t, StateReady, s.State())
	_, err = s.Invoke(context.Background(), "get_channel_info", nil)
	assert.NoError(t, err)
}

func TestInvokeMismatchedIDIsTimeout(t *testing.T) {
	reply := server(t, allTools, map[string]replyFunc{
		protocol.MethodCallTool: func(msg protocol.Message) []protocol.Message {
			req := msg.(*protocol.Request)
			return []protocol.Message{result(t, jsonrpc2.ID{Num: req.ID.Num + 40}, protocol.CallToolResult{})}
		},
	})
	s, d := readySession(t, reply, Config{})

	_, err := s.Invoke(context.Background(), "get_channel_info", nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, d.Last().Stops())
}

func TestInvokeNotificationInReadSlotIsTimeout(t *testing.T) {
	reply := server(t, allTools, map[string]replyFunc{
		protocol.MethodCallTool: func(protocol.Message) []protocol.Message {
			return []protocol.Message{&protocol.Notification{Method: "notifications/progress"}}
		},
	})
	s, _ := readySession(t, reply, Config{})

	_, err := s.Invoke(context.Background(), "get_channel_info", nil)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestInvokeRequestTimeout(t *testing.T) {
	reply := server(t, allTools, map[string]replyFunc{
		protocol.MethodCallTool: func(protocol.Message) []protocol.Message { return nil },
	})
	s, _ := readySession(t, reply, Config{RequestTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := s.Invoke(context.Background(), "get_channel_info", nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateClosed, s.State())
}

func TestInvokeOnDeadTransportClosesSession(t *testing.T) {
	s, d := readySession(t, server(t, allTools, nil), Config{})

	// child died underneath the session
	d.Last().Stop(context.Background())

	_, err := s.Invoke(context.Background(), "get_channel_info", nil)
	assert.ErrorIs(t, err, transport.ErrConnectionClosed)
	assert.Equal(t, StateClosed, s.State())

	_, err = s.Invoke(context.Background(), "get_channel_info", nil)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	s, d := readySession(t, server(t, allTools, nil), Config{})

	require.NoError(t, s.Disconnect(context.Background()))
	require.NoError(t, s.Disconnect(context.Background()))
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, d.Last().Stops())

	_, err := s.Invoke(context.Background(), "get_channel_info", nil)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, s.Connect(context.Background()), ErrClosed)
}

func TestDisconnectBeforeConnect(t *testing.T) {
	s, d := newTestSession(server(t, allTools, nil), Config{})
	require.NoError(t, s.Disconnect(context.Background()))
	assert.Equal(t, StateClosed, s.State())
	assert.Zero(t, d.Count())
}

func TestDisconnectAbortsInFlightInvoke(t *testing.T) {
	reply := server(t, allTools, map[string]replyFunc{
		protocol.MethodCallTool: func(protocol.Message) []protocol.Message { return nil },
	})
	s, d := readySession(t, reply, Config{})

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Invoke(context.Background(), "get_channel_info", nil)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return len(d.Last().Sent()) == 4 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Disconnect(context.Background()))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, transport.ErrConnectionClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("invoke was not aborted by disconnect")
	}
}

func TestInvokeCallsAreSerialized(t *testing.T) {
	s, d := readySession(t, server(t, allTools, nil), Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Invoke(context.Background(), "get_channel_info", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := map[uint64]bool{}
	for _, msg := range d.Last().Sent()[3:] {
		req := msg.(*protocol.Request)
		assert.False(t, seen[req.ID.Num], "id %d reused", req.ID.Num)
		seen[req.ID.Num] = true
	}
	assert.Len(t, seen, 8)
}
