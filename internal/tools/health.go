package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alucardeht/ytscribe-mcp/pkg/protocol"
)

type HealthTool struct {
	registry  *Registry
	startTime time.Time
}

func NewHealthTool(registry *Registry) *HealthTool {
	return &HealthTool{
		registry:  registry,
		startTime: time.Now(),
	}
}

func (t *HealthTool) Name() string {
	return "health"
}

func (t *HealthTool) Description() string {
	return "Check server health status"
}

func (t *HealthTool) Title() string {
	return "Server health"
}

func (t *HealthTool) Annotations() map[string]bool {
	return LocalReadAnnotations()
}

func (t *HealthTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {},
		"required": []
	}`)
}

func (t *HealthTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	return protocol.HealthResponse{
		Status: "healthy",
		Uptime: int64(time.Since(t.startTime).Seconds()),
		Tools:  t.registry.Len(),
	}, nil
}
