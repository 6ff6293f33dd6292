package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alucardeht/ytscribe-mcp/internal/cache"
	"github.com/alucardeht/ytscribe-mcp/internal/extract"
	"github.com/alucardeht/ytscribe-mcp/internal/tools"
	"github.com/alucardeht/ytscribe-mcp/internal/youtube"
	"github.com/alucardeht/ytscribe-mcp/pkg/protocol"
)

func engineReturning(calls *atomic.Int32, payload string) *extract.Engine {
	return extract.NewEngine([]extract.Strategy{
		extract.StrategyFunc("fake", time.Second, func(context.Context, extract.Target) extract.Outcome {
			calls.Add(1)
			return extract.Outcome{Payload: payload}
		}),
	})
}

func args(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func callResult(t *testing.T, v interface{}) *protocol.CallToolResult {
	t.Helper()
	res, ok := v.(*protocol.CallToolResult)
	require.True(t, ok, "expected *protocol.CallToolResult, got %T", v)
	return res
}

func TestTranscriptToolSuccess(t *testing.T) {
	var calls atomic.Int32
	tool := NewTranscriptTool(engineReturning(&calls, "hello world"), nil)

	out, err := tool.Execute(context.Background(), args(t, map[string]string{"url": "https://youtu.be/abcdefghijk"}))
	require.NoError(t, err)

	res := callResult(t, out)
	assert.False(t, res.IsError)
	assert.Equal(t, "hello world", res.Text())
	assert.EqualValues(t, 1, calls.Load())
}

func TestTranscriptToolInvalidURL(t *testing.T) {
	var calls atomic.Int32
	tool := NewTranscriptTool(engineReturning(&calls, "unused"), nil)

	out, err := tool.Execute(context.Background(), args(t, map[string]string{"url": "not-a-url"}))
	require.NoError(t, err)

	res := callResult(t, out)
	assert.True(t, res.IsError)
	assert.Empty(t, res.Content)
	assert.NotNil(t, res.Content)
	assert.Contains(t, res.ErrorMessage, "not-a-url")
	assert.Zero(t, calls.Load())

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[],"isError":true,"errorMessage":"Invalid YouTube URL: not-a-url"}`, string(data))
}

func TestTranscriptToolExhausted(t *testing.T) {
	var calls atomic.Int32
	tool := NewTranscriptTool(engineReturning(&calls, " "), nil)

	out, err := tool.Execute(context.Background(), args(t, map[string]string{"url": "https://youtu.be/abcdefghijk"}))
	require.NoError(t, err)

	res := callResult(t, out)
	assert.True(t, res.IsError)
	assert.Contains(t, res.ErrorMessage, "'abcdefghijk'")
}

func TestTranscriptToolCache(t *testing.T) {
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), time.Hour)
	require.NoError(t, err)
	defer store.Close()

	var calls atomic.Int32
	tool := NewTranscriptTool(engineReturning(&calls, "cached words"), store)
	input := args(t, map[string]string{"url": "https://www.youtube.com/watch?v=abcdefghijk"})

	for i := 0; i < 3; i++ {
		out, err := tool.Execute(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, "cached words", callResult(t, out).Text())
	}
	assert.EqualValues(t, 1, calls.Load())

	entry, err := store.Get(context.Background(), "abcdefghijk")
	require.NoError(t, err)
	assert.Equal(t, "fake", entry.Source)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (*cache.Entry, error) {
	return nil, errors.New("disk gone")
}

func (brokenCache) Put(context.Context, string, string, string) error {
	return errors.New("disk gone")
}

func TestTranscriptToolCacheFailureFallsThrough(t *testing.T) {
	var calls atomic.Int32
	tool := NewTranscriptTool(engineReturning(&calls, "fresh"), brokenCache{})

	out, err := tool.Execute(context.Background(), args(t, map[string]string{"url": "https://youtu.be/abcdefghijk"}))
	require.NoError(t, err)
	assert.Equal(t, "fresh", callResult(t, out).Text())
}

func TestTranscriptToolBadArguments(t *testing.T) {
	var calls atomic.Int32
	tool := NewTranscriptTool(engineReturning(&calls, "x"), nil)

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"url": 5}`))
	var toolErr *tools.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.EqualValues(t, -32602, toolErr.Code)
}

func newAPIClient(t *testing.T) *youtube.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/v3/search":
			assert.Equal(t, "3", q.Get("maxResults"))
			fmt.Fprint(w, `{"items":[{"id":{"videoId":"vid00000001"}}]}`)
		case "/v3/videos":
			fmt.Fprint(w, `{"items":[{"id":"vid00000001","snippet":{"title":"Go talk","channelId":"UC1","channelTitle":"Gophers"},"statistics":{"viewCount":"10"}}]}`)
		case "/v3/channels":
			fmt.Fprint(w, `{"items":[{"id":"UC1","snippet":{"title":"Gophers"},"statistics":{"subscriberCount":"7"}}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	return youtube.NewClient(
		youtube.WithAPIBase(srv.URL+"/v3"),
		youtube.WithWebBase(srv.URL),
		youtube.WithAPIKey("key"),
	)
}

func TestSearchTool(t *testing.T) {
	tool := NewSearchTool(newAPIClient(t))

	out, err := tool.Execute(context.Background(), args(t, map[string]interface{}{"query": "golang", "max_results": 3}))
	require.NoError(t, err)

	cards, ok := out.([]youtube.VideoCard)
	require.True(t, ok)
	require.Len(t, cards, 1)
	assert.Equal(t, "Go talk", cards[0].Title)
	assert.EqualValues(t, 10, cards[0].ViewCount)

	_, err = tool.Execute(context.Background(), args(t, map[string]string{"query": "  "}))
	var toolErr *tools.ToolError
	assert.ErrorAs(t, err, &toolErr)
}

func TestChannelTool(t *testing.T) {
	tool := NewChannelTool(newAPIClient(t))

	out, err := tool.Execute(context.Background(), args(t, map[string]string{"video_url": "https://youtu.be/vid00000001"}))
	require.NoError(t, err)

	info, ok := out.(*youtube.ChannelInfo)
	require.True(t, ok)
	assert.Equal(t, "Gophers", info.ChannelTitle)
	assert.Equal(t, "7", info.SubscriberCount)
	assert.Equal(t, "0", info.VideoCount)
	assert.Empty(t, info.Videos)

	_, err = tool.Execute(context.Background(), args(t, map[string]string{"video_url": "not-a-url"}))
	var toolErr *tools.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.ErrorIs(t, err, youtube.ErrInvalidURL)
}

func TestGetToolsRegister(t *testing.T) {
	client := youtube.NewClient()
	engine := extract.NewEngine(nil, extract.WithCircuitBreakers(extract.DefaultCircuitConfig()))

	registry := tools.NewRegistry()
	for _, tool := range GetTools(client, engine, nil) {
		require.NoError(t, registry.Register(tool))
	}

	assert.Equal(t, []string{StatusToolName, ChannelToolName, TranscriptToolName, SearchToolName}, registry.Names())

	out, err := registry.Execute(context.Background(), StatusToolName, nil, time.Second)
	require.NoError(t, err)
	status, ok := out.(StatusResponse)
	require.True(t, ok)
	assert.Empty(t, status.Strategies)
	assert.Nil(t, status.Cache)
}

func TestStatusToolResetsCircuits(t *testing.T) {
	engine := extract.NewEngine([]extract.Strategy{
		extract.StrategyFunc("blocked", time.Second, func(context.Context, extract.Target) extract.Outcome {
			return extract.Outcome{Err: errors.New("HTTP 429")}
		}),
	}, extract.WithCircuitBreakers(extract.CircuitConfig{FailureThreshold: 1, OpenTimeout: time.Hour}))

	_, err := engine.Run(context.Background(), "https://youtu.be/abcdefghijk")
	require.NoError(t, err)
	require.Equal(t, extract.CircuitOpen, engine.CircuitStats()["blocked"].State)

	tool := NewStatusTool(engine, nil)

	out, err := tool.Execute(context.Background(), args(t, map[string]bool{"reset_circuits": false}))
	require.NoError(t, err)
	status := out.(StatusResponse)
	assert.Empty(t, status.Reset)
	assert.Equal(t, "HTTP 429", status.Circuits["blocked"].LastError)

	out, err = tool.Execute(context.Background(), args(t, map[string]bool{"reset_circuits": true}))
	require.NoError(t, err)
	status = out.(StatusResponse)
	assert.Equal(t, []string{"blocked"}, status.Reset)
	assert.Equal(t, extract.CircuitClosed, status.Circuits["blocked"].State)
	assert.Equal(t, 1, status.Circuits["blocked"].Trips)
}
