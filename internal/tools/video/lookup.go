package video

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alucardeht/ytscribe-mcp/internal/tools"
	"github.com/alucardeht/ytscribe-mcp/internal/youtube"
)

var parseVideoID = youtube.ParseVideoID

type SearchTool struct {
	client *youtube.Client
}

func NewSearchTool(client *youtube.Client) *SearchTool {
	return &SearchTool{client: client}
}

func (t *SearchTool) Name() string {
	return SearchToolName
}

func (t *SearchTool) Description() string {
	return `Search YouTube videos by keyword.

Returns one video card per hit with title, publish date, channel, thumbnail,
view and like counts and the watch URL. Requires a YouTube Data API key.`
}

func (t *SearchTool) Title() string {
	return "Search YouTube"
}

func (t *SearchTool) Annotations() map[string]bool {
	return tools.RemoteReadAnnotations()
}

func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "Search keywords"
			},
			"max_results": {
				"type": "integer",
				"minimum": 1,
				"maximum": %d,
				"description": "Maximum number of videos (default %d)"
			}
		},
		"required": ["query"]
	}`, youtube.MaxSearchResults, youtube.DefaultMaxResults))
}

func (t *SearchTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var req struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := decodeArgs(t.Name(), input, &req); err != nil {
		return nil, err
	}
	if err := requireString(t.Name(), "query", req.Query); err != nil {
		return nil, err
	}

	return t.client.SearchVideos(ctx, req.Query, req.MaxResults)
}

type ChannelTool struct {
	client *youtube.Client
}

func NewChannelTool(client *youtube.Client) *ChannelTool {
	return &ChannelTool{client: client}
}

func (t *ChannelTool) Name() string {
	return ChannelToolName
}

func (t *ChannelTool) Description() string {
	return `Get information about the channel that published a video.

Returns the channel title, URL, subscriber, view and video counts and up to
five recent uploads. Requires a YouTube Data API key.`
}

func (t *ChannelTool) Title() string {
	return "YouTube channel info"
}

func (t *ChannelTool) Annotations() map[string]bool {
	return tools.RemoteReadAnnotations()
}

func (t *ChannelTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"video_url": {
				"type": "string",
				"description": "URL of any video from the channel"
			}
		},
		"required": ["video_url"]
	}`)
}

func (t *ChannelTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var req struct {
		VideoURL string `json:"video_url"`
	}
	if err := decodeArgs(t.Name(), input, &req); err != nil {
		return nil, err
	}
	if err := requireString(t.Name(), "video_url", req.VideoURL); err != nil {
		return nil, err
	}

	id, err := parseVideoID(req.VideoURL)
	if err != nil {
		return nil, tools.NewInvalidParamsError(t.Name(), err)
	}
	return t.client.ChannelInfo(ctx, id)
}
