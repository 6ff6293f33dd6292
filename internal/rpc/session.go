package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alucardeht/ytscribe-mcp/internal/logger"
	"github.com/alucardeht/ytscribe-mcp/internal/transport"
	"github.com/alucardeht/ytscribe-mcp/pkg/protocol"
	"github.com/alucardeht/ytscribe-mcp/pkg/version"
)

var log = logger.ForComponent("rpc")

type State string

const (
	StateDisconnected State = "disconnected"
	StateHandshaking  State = "handshaking"
	StateReady        State = "ready"
	StateClosed       State = "closed"
)

// Conn is the message pipe a Session drives. *transport.Transport implements it.
type Conn interface {
	Start(command string, args ...string) error
	Send(msg protocol.Message) error
	Receive(ctx context.Context) (protocol.Message, error)
	Stop(ctx context.Context) error
}

type Config struct {
	Command          string
	Args             []string
	ClientName       string
	ClientVersion    string
	HandshakeTimeout time.Duration
	RequestTimeout   time.Duration
	StopTimeout      time.Duration

	// Dial builds a fresh Conn for every Connect attempt. Defaults to a
	// stdio transport.
	Dial func() Conn
}

func DefaultConfig() Config {
	return Config{
		ClientName:       "ytscribe",
		ClientVersion:    version.Version,
		HandshakeTimeout: 30 * time.Second,
		RequestTimeout:   2 * time.Minute,
		StopTimeout:      5 * time.Second,
	}
}

// Session is one client connection to a server child process. Calls are
// strictly sequential: a request is not sent until the previous response has
// been read.
type Session struct {
	id  string
	cfg Config

	callMu sync.Mutex

	stateMu    sync.Mutex
	state      State
	conn       Conn
	tools      []protocol.ToolDescriptor
	serverInfo protocol.ImplementationInfo

	nextID atomic.Uint64
}

func NewSession(cfg Config) *Session {
	defaults := DefaultConfig()
	if cfg.ClientName == "" {
		cfg.ClientName = defaults.ClientName
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = defaults.ClientVersion
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaults.StopTimeout
	}
	if cfg.Dial == nil {
		cfg.Dial = func() Conn { return transport.New() }
	}

	return &Session{
		id:    uuid.NewString(),
		cfg:   cfg,
		state: StateDisconnected,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Connect starts the server and performs the initialize, initialized,
// tools/list handshake. On any failure the child is stopped and the session
// stays Disconnected so Connect may be retried.
func (s *Session) Connect(ctx context.Context) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	s.stateMu.Lock()
	switch s.state {
	case StateReady:
		s.stateMu.Unlock()
		return nil
	case StateClosed:
		s.stateMu.Unlock()
		return ErrClosed
	}
	conn := s.cfg.Dial()
	s.state = StateHandshaking
	s.conn = conn
	s.stateMu.Unlock()

	log.Debug("connecting", "session", s.id, "command", s.cfg.Command)

	if err := conn.Start(s.cfg.Command, s.cfg.Args...); err != nil {
		s.abortConnect(conn)
		return err
	}

	s.nextID.Store(0)
	info, tools, err := s.handshake(ctx, conn)
	if err != nil {
		s.stopConn(conn)
		if s.abortConnect(conn) {
			return ErrClosed
		}
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	s.state = StateReady
	s.tools = tools
	s.serverInfo = info

	log.Info("session ready", "session", s.id, "server", info.Name, "server_version", info.Version, "tools", len(tools))
	return nil
}

// abortConnect returns the session to Disconnected unless Disconnect won the
// race, in which case it reports true and leaves it Closed.
func (s *Session) abortConnect(conn Conn) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state == StateClosed {
		return true
	}
	if s.conn == conn {
		s.conn = nil
	}
	s.state = StateDisconnected
	return false
}

func (s *Session) handshake(ctx context.Context, conn Conn) (protocol.ImplementationInfo, []protocol.ToolDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	var info protocol.ImplementationInfo

	resp, err := s.roundTrip(ctx, conn, protocol.MethodInitialize, protocol.InitializeParams{
		ProtocolVersion: version.ProtocolVersion,
		Capabilities:    map[string]interface{}{"tools": map[string]interface{}{}},
		ClientInfo:      protocol.ImplementationInfo{Name: s.cfg.ClientName, Version: s.cfg.ClientVersion},
	})
	if err != nil {
		return info, nil, fmt.Errorf("initialize: %w", err)
	}
	if !resp.Success() {
		return info, nil, fmt.Errorf("initialize: %w", remoteError(resp))
	}
	if !isObject(resp.Result) {
		return info, nil, fmt.Errorf("initialize: missing result")
	}
	var init protocol.InitializeResult
	if err := json.Unmarshal(resp.Result, &init); err != nil {
		return info, nil, fmt.Errorf("initialize: invalid result: %w", err)
	}
	info = init.ServerInfo

	notif, err := protocol.NewNotification(protocol.MethodInitialized, nil)
	if err != nil {
		return info, nil, err
	}
	if err := conn.Send(notif); err != nil {
		return info, nil, fmt.Errorf("initialized: %w", err)
	}

	resp, err = s.roundTrip(ctx, conn, protocol.MethodListTools, nil)
	if err != nil {
		return info, nil, fmt.Errorf("tools/list: %w", err)
	}
	if !resp.Success() {
		return info, nil, fmt.Errorf("tools/list: %w", remoteError(resp))
	}
	if !isObject(resp.Result) {
		return info, nil, fmt.Errorf("tools/list: missing result")
	}
	var list struct {
		Tools *[]protocol.ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &list); err != nil {
		return info, nil, fmt.Errorf("tools/list: invalid result: %w", err)
	}
	if list.Tools == nil {
		return info, nil, fmt.Errorf("tools/list: result has no tools")
	}
	for _, tool := range *list.Tools {
		if tool.Name == "" {
			return info, nil, fmt.Errorf("tools/list: tool without a name")
		}
	}

	return info, *list.Tools, nil
}

// roundTrip sends one request and performs exactly one read for its response.
func (s *Session) roundTrip(ctx context.Context, conn Conn, method string, params interface{}) (*protocol.Response, error) {
	id := s.nextID.Add(1)

	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	if err := conn.Send(req); err != nil {
		return nil, err
	}

	msg, err := conn.Receive(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w for %s id %d: %w", ErrTimeout, method, id, err)
		}
		return nil, err
	}

	resp, ok := msg.(*protocol.Response)
	if !ok {
		return nil, fmt.Errorf("%w for %s id %d: read a %T instead", ErrTimeout, method, id, msg)
	}
	if resp.ID == nil || resp.ID.IsString || resp.ID.Num != id {
		return nil, fmt.Errorf("%w for %s id %d: read response for id %s", ErrTimeout, method, id, describeID(resp))
	}
	return resp, nil
}

// Invoke calls the named tool. It is only valid in the Ready state and fails
// without any I/O otherwise. A transport, framing or pairing failure closes
// the session; a RemoteError leaves it usable.
func (s *Session) Invoke(ctx context.Context, name string, arguments map[string]interface{}) (*protocol.CallToolResult, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	s.stateMu.Lock()
	state, conn := s.state, s.conn
	s.stateMu.Unlock()
	if state != StateReady {
		return nil, fmt.Errorf("%w (state %s)", ErrNotReady, state)
	}

	args, err := json.Marshal(arguments)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	if arguments == nil {
		args = json.RawMessage(`{}`)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.roundTrip(ctx, conn, protocol.MethodCallTool, protocol.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		log.Warn("invoke failed, closing session", "session", s.id, "tool", name, "error", err)
		s.closeWith(conn)
		return nil, err
	}

	log.Debug("invoke completed", "session", s.id, "tool", name, "latency_ms", time.Since(start).Milliseconds())

	if !resp.Success() {
		return nil, remoteError(resp)
	}

	var result protocol.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", name, err)
	}
	return &result, nil
}

// Disconnect stops the server. It does not wait for an in-flight Invoke,
// which observes the closed connection. Safe to call in any state.
func (s *Session) Disconnect(ctx context.Context) error {
	s.stateMu.Lock()
	conn := s.conn
	s.conn = nil
	prev := s.state
	s.state = StateClosed
	s.stateMu.Unlock()

	if conn == nil {
		return nil
	}

	log.Debug("disconnecting", "session", s.id, "from", prev)
	return conn.Stop(ctx)
}

func (s *Session) closeWith(conn Conn) {
	s.stateMu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.state = StateClosed
	s.stateMu.Unlock()

	s.stopConn(conn)
}

func (s *Session) stopConn(conn Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
	defer cancel()
	if err := conn.Stop(ctx); err != nil {
		log.Debug("stop failed", "session", s.id, "error", err)
	}
}

func (s *Session) Tools() []protocol.ToolDescriptor {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return append([]protocol.ToolDescriptor(nil), s.tools...)
}

func (s *Session) ToolNames() []string {
	tools := s.Tools()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

func (s *Session) ServerInfo() protocol.ImplementationInfo {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.serverInfo
}

func remoteError(resp *protocol.Response) *RemoteError {
	return &RemoteError{Code: resp.Error.Code, Message: resp.Error.Message}
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) >= 2 && trimmed[0] == '{'
}

func describeID(resp *protocol.Response) string {
	if resp.ID == nil {
		return "null"
	}
	return resp.ID.String()
}
