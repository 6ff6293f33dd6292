package video

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alucardeht/ytscribe-mcp/internal/cache"
	"github.com/alucardeht/ytscribe-mcp/internal/extract"
	"github.com/alucardeht/ytscribe-mcp/internal/logger"
	"github.com/alucardeht/ytscribe-mcp/internal/tools"
	"github.com/alucardeht/ytscribe-mcp/internal/youtube"
)

var log = logger.ForComponent("tools.video")

const (
	TranscriptToolName = "get_youtube_transcript"
	SearchToolName     = "search_youtube_videos"
	ChannelToolName    = "get_channel_info"
	StatusToolName     = "extraction_status"
)

// TranscriptCache is the subset of cache.Store the transcript tool uses.
type TranscriptCache interface {
	Get(ctx context.Context, videoID string) (*cache.Entry, error)
	Put(ctx context.Context, videoID, source, transcript string) error
}

// GetTools returns the video tools. store may be nil when caching is off.
func GetTools(client *youtube.Client, engine *extract.Engine, store *cache.Store) []tools.Tool {
	var tc TranscriptCache
	if store != nil {
		tc = store
	}
	return []tools.Tool{
		NewTranscriptTool(engine, tc),
		NewSearchTool(client),
		NewChannelTool(client),
		NewStatusTool(engine, store),
	}
}

func decodeArgs(tool string, input json.RawMessage, v interface{}) error {
	if len(input) == 0 || string(input) == "null" {
		input = json.RawMessage("{}")
	}
	if err := json.Unmarshal(input, v); err != nil {
		return tools.NewInvalidParamsError(tool, err)
	}
	return nil
}

func requireString(tool, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return tools.NewInvalidParamsError(tool, fmt.Errorf("%s is required", field))
	}
	return nil
}
