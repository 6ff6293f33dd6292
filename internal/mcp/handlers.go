package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/alucardeht/ytscribe-mcp/internal/logger"
	"github.com/alucardeht/ytscribe-mcp/internal/tools"
	"github.com/alucardeht/ytscribe-mcp/pkg/protocol"
	"github.com/alucardeht/ytscribe-mcp/pkg/version"
)

var log = logger.ForComponent("mcp")

const (
	DefaultServerName  = "ytscribe MCP Server"
	DefaultToolTimeout = 4 * time.Minute
)

type Handler struct {
	registry    *tools.Registry
	serverName  string
	toolTimeout time.Duration

	initialized atomic.Bool

	mu         sync.Mutex
	clientInfo protocol.ImplementationInfo
}

type HandlerOption func(*Handler)

func WithServerName(name string) HandlerOption {
	return func(h *Handler) {
		if name != "" {
			h.serverName = name
		}
	}
}

func WithToolTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.toolTimeout = d
		}
	}
}

func NewHandler(registry *tools.Registry, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry:    registry,
		serverName:  DefaultServerName,
		toolTimeout: DefaultToolTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle answers one inbound message. Notifications and stray responses yield
// nil: nothing is written back for them.
func (h *Handler) Handle(ctx context.Context, msg protocol.Message) *protocol.Response {
	switch m := msg.(type) {
	case *protocol.Notification:
		h.handleNotification(m)
		return nil
	case *protocol.Response:
		log.Debug("ignoring response sent to server", "id", m.ID)
		return nil
	case *protocol.Request:
		return h.handleRequest(ctx, m)
	default:
		return nil
	}
}

func (h *Handler) handleRequest(ctx context.Context, req *protocol.Request) *protocol.Response {
	var (
		result interface{}
		err    error
	)

	switch req.Method {
	case protocol.MethodInitialize:
		result, err = h.handleInitialize(req)
	case protocol.MethodPing:
		result = map[string]interface{}{}
	case protocol.MethodListTools:
		result = h.handleListTools()
	case protocol.MethodCallTool:
		result, err = h.handleCallTool(ctx, req)
	default:
		return protocol.NewError(req.ReplyID(), jsonrpc2.CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}

	if err != nil {
		var toolErr *tools.ToolError
		if errors.As(err, &toolErr) {
			return protocol.NewError(req.ReplyID(), toolErr.Code, toolErr.Message)
		}
		return protocol.NewError(req.ReplyID(), jsonrpc2.CodeInternalError, err.Error())
	}

	resp, err := protocol.NewResult(req.ID, result)
	if err != nil {
		log.Error("failed to encode result", "method", req.Method, "error", err)
		return protocol.NewError(req.ReplyID(), jsonrpc2.CodeInternalError, err.Error())
	}
	resp.ID = req.ReplyID()
	return resp
}

func (h *Handler) handleNotification(n *protocol.Notification) {
	switch n.Method {
	case protocol.MethodInitialized:
		h.initialized.Store(true)
		log.Debug("client initialized")
	default:
		log.Debug("ignoring notification", "method", n.Method)
	}
}

func (h *Handler) handleInitialize(req *protocol.Request) (interface{}, error) {
	var params protocol.InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &tools.ToolError{
				Code:    jsonrpc2.CodeInvalidParams,
				Message: fmt.Sprintf("failed to parse initialize request: %v", err),
			}
		}
	}

	h.mu.Lock()
	h.clientInfo = params.ClientInfo
	h.mu.Unlock()

	log.Info("client connected", "client", params.ClientInfo.Name, "client_version", params.ClientInfo.Version, "protocol", params.ProtocolVersion)

	return protocol.InitializeResult{
		ProtocolVersion: negotiateProtocolVersion(params.ProtocolVersion),
		Capabilities: map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		ServerInfo: protocol.ImplementationInfo{
			Name:    h.serverName,
			Version: version.Version,
		},
	}, nil
}

func negotiateProtocolVersion(clientVersion string) string {
	for _, v := range version.SupportedProtocolVersions {
		if clientVersion == v {
			return v
		}
	}

	return version.ProtocolVersion
}

func (h *Handler) handleListTools() interface{} {
	toolsList := h.registry.List()
	descriptors := make([]protocol.ToolDescriptor, len(toolsList))

	for i, t := range toolsList {
		desc := protocol.ToolDescriptor{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
		}
		if !json.Valid(desc.InputSchema) {
			desc.InputSchema = json.RawMessage(`{"type":"object"}`)
		}

		if annotated, ok := t.(tools.AnnotatedTool); ok {
			desc.Title = annotated.Title()
			desc.Annotations = annotated.Annotations()
		}

		descriptors[i] = desc
	}

	return protocol.ListToolsResult{Tools: descriptors}
}

func (h *Handler) handleCallTool(ctx context.Context, req *protocol.Request) (interface{}, error) {
	var params protocol.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, &tools.ToolError{
			Code:    jsonrpc2.CodeInvalidParams,
			Message: fmt.Sprintf("failed to parse tool call request: %v", err),
		}
	}

	if params.Name == "" {
		return nil, &tools.ToolError{Code: jsonrpc2.CodeInvalidParams, Message: "tool name is required"}
	}

	result, err := h.registry.Execute(ctx, params.Name, params.Arguments, h.toolTimeout)
	if err != nil {
		log.Warn("tool call failed", "tool", params.Name, "error", err)
		return nil, err
	}

	return toCallToolResult(result)
}

// toCallToolResult shapes a tool's return value as a tools/call result.
func toCallToolResult(result interface{}) (*protocol.CallToolResult, error) {
	if enc, ok := result.(protocol.ResultEncoder); ok {
		out := enc.CallToolResult()
		if out.Content == nil {
			out.Content = []protocol.ContentItem{}
		}
		return out, nil
	}

	if result != nil {
		v := reflect.ValueOf(result)
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() != reflect.Uint8 {
			content := make([]protocol.ContentItem, 0, v.Len())
			for i := 0; i < v.Len(); i++ {
				item, err := textItem(v.Index(i).Interface())
				if err != nil {
					return nil, err
				}
				content = append(content, item)
			}
			return &protocol.CallToolResult{Content: content}, nil
		}
	}

	item, err := textItem(result)
	if err != nil {
		return nil, err
	}
	return &protocol.CallToolResult{Content: []protocol.ContentItem{item}}, nil
}

func textItem(v interface{}) (protocol.ContentItem, error) {
	if s, ok := v.(string); ok {
		return protocol.TextContent(s), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return protocol.ContentItem{}, fmt.Errorf("failed to marshal result: %w", err)
	}
	return protocol.TextContent(strings.TrimSpace(string(data))), nil
}

func (h *Handler) Initialized() bool {
	return h.initialized.Load()
}

func (h *Handler) ClientInfo() protocol.ImplementationInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clientInfo
}
