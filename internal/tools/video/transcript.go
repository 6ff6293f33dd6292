package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alucardeht/ytscribe-mcp/internal/extract"
	"github.com/alucardeht/ytscribe-mcp/internal/tools"
	"github.com/alucardeht/ytscribe-mcp/pkg/protocol"
)

type TranscriptTool struct {
	engine *extract.Engine
	cache  TranscriptCache
}

func NewTranscriptTool(engine *extract.Engine, cache TranscriptCache) *TranscriptTool {
	return &TranscriptTool{engine: engine, cache: cache}
}

func (t *TranscriptTool) Name() string {
	return TranscriptToolName
}

func (t *TranscriptTool) Description() string {
	return `Get the transcript of a YouTube video.

Accepts watch, youtu.be, embed, shorts and live URLs. Official captions are
tried first, then the watch page caption tracks, the timedtext endpoint and
finally yt-dlp. Korean and English tracks are preferred.

When no transcript can be retrieved the result has isError set and carries
errorMessage instead of text.`
}

func (t *TranscriptTool) Title() string {
	return "YouTube transcript"
}

func (t *TranscriptTool) Annotations() map[string]bool {
	return tools.RemoteReadAnnotations()
}

func (t *TranscriptTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {
				"type": "string",
				"description": "YouTube video URL"
			}
		},
		"required": ["url"]
	}`)
}

func (t *TranscriptTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := decodeArgs(t.Name(), input, &req); err != nil {
		return nil, err
	}

	id, cached := t.lookup(ctx, req.URL)
	if cached != "" {
		return textResult(cached), nil
	}

	var (
		result *extract.Result
		err    error
	)
	if id != "" {
		result = t.engine.RunTarget(ctx, extract.Target(id))
	} else {
		result, err = t.engine.Run(ctx, req.URL)
	}
	if errors.Is(err, extract.ErrInvalidTarget) {
		return failedResult(fmt.Sprintf("Invalid YouTube URL: %s", req.URL)), nil
	}
	if err != nil {
		return failedResult(fmt.Sprintf("Unexpected error: %v", err)), nil
	}
	if result.Failed {
		return failedResult(result.Message), nil
	}

	if t.cache != nil {
		if err := t.cache.Put(ctx, string(result.Target), result.Source, result.Payload); err != nil {
			log.Warn("failed to cache transcript", "video_id", result.Target, "error", err)
		}
	}
	return textResult(result.Payload), nil
}

// lookup resolves the video id and returns a cached transcript when one is
// stored. Both values are empty for an unparseable locator or no cache.
func (t *TranscriptTool) lookup(ctx context.Context, locator string) (string, string) {
	if t.cache == nil {
		return "", ""
	}
	id, err := parseVideoID(locator)
	if err != nil {
		return "", ""
	}
	entry, err := t.cache.Get(ctx, id)
	if err != nil {
		log.Warn("transcript cache lookup failed", "video_id", id, "error", err)
		return id, ""
	}
	if entry == nil {
		return id, ""
	}
	log.Debug("transcript served from cache", "video_id", id, "source", entry.Source)
	return id, entry.Transcript
}

func textResult(text string) *protocol.CallToolResult {
	return &protocol.CallToolResult{Content: []protocol.ContentItem{protocol.TextContent(text)}}
}

func failedResult(message string) *protocol.CallToolResult {
	return &protocol.CallToolResult{
		Content:      []protocol.ContentItem{},
		IsError:      true,
		ErrorMessage: message,
	}
}
