package video

import (
	"context"
	"encoding/json"

	"github.com/alucardeht/ytscribe-mcp/internal/cache"
	"github.com/alucardeht/ytscribe-mcp/internal/extract"
	"github.com/alucardeht/ytscribe-mcp/internal/tools"
)

type StatusResponse struct {
	Strategies []string                        `json:"strategies"`
	Reset      []string                        `json:"reset,omitempty"`
	Circuits   map[string]extract.CircuitStats `json:"circuits,omitempty"`
	Cache      *cache.Stats                    `json:"cache,omitempty"`
}

// StatusTool reports the extraction chain and the state of its breakers.
type StatusTool struct {
	engine *extract.Engine
	store  *cache.Store
}

func NewStatusTool(engine *extract.Engine, store *cache.Store) *StatusTool {
	return &StatusTool{engine: engine, store: store}
}

func (t *StatusTool) Name() string {
	return StatusToolName
}

func (t *StatusTool) Description() string {
	return `Show the transcript strategy chain, circuit breaker state and cache statistics.

Set reset_circuits to close every open breaker, for example after YouTube
stopped rate limiting this host.`
}

func (t *StatusTool) Title() string {
	return "Extraction status"
}

func (t *StatusTool) Annotations() map[string]bool {
	return tools.LocalReadAnnotations()
}

func (t *StatusTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"reset_circuits": {
				"type": "boolean",
				"description": "Close every open circuit breaker before reporting"
			}
		},
		"required": []
	}`)
}

func (t *StatusTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var req struct {
		ResetCircuits bool `json:"reset_circuits"`
	}
	if err := decodeArgs(t.Name(), input, &req); err != nil {
		return nil, err
	}

	resp := StatusResponse{Strategies: t.engine.Strategies()}
	if req.ResetCircuits {
		resp.Reset = t.engine.ResetCircuits()
		log.Info("circuit breakers reset", "strategies", resp.Reset)
	}
	resp.Circuits = t.engine.CircuitStats()
	if t.store != nil {
		st, err := t.store.Stats(ctx)
		if err != nil {
			return nil, err
		}
		resp.Cache = &st
	}
	return resp, nil
}
