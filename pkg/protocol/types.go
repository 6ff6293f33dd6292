package protocol

import (
	"encoding/json"
	"strings"
)

const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"
	MethodListTools   = "tools/list"
	MethodCallTool    = "tools/call"
)

type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      ImplementationInfo     `json:"clientInfo"`
}

type InitializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      ImplementationInfo     `json:"serverInfo"`
}

type ToolDescriptor struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	Annotations map[string]bool `json:"annotations,omitempty"`
}

type ListToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func TextContent(text string) ContentItem {
	return ContentItem{Type: "text", Text: text}
}

// CallToolResult is the tools/call result payload. A domain-level failure is
// reported with IsError and ErrorMessage inside a successful response.
type CallToolResult struct {
	Content      []ContentItem `json:"content"`
	IsError      bool          `json:"isError,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
}

// Text joins the text items of the result, one per line.
func (r *CallToolResult) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, item := range r.Content {
		if item.Type == "text" {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ResultEncoder is implemented by tool results that already have the
// tools/call result shape and must be sent as-is.
type ResultEncoder interface {
	CallToolResult() *CallToolResult
}

func (r *CallToolResult) CallToolResult() *CallToolResult {
	return r
}

type HealthResponse struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime"`
	Tools  int    `json:"tools"`
}
