package rpc

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alucardeht/ytscribe-mcp/internal/extract"
	"github.com/alucardeht/ytscribe-mcp/internal/mcp"
	"github.com/alucardeht/ytscribe-mcp/internal/tools"
	"github.com/alucardeht/ytscribe-mcp/internal/tools/video"
	"github.com/alucardeht/ytscribe-mcp/internal/transport"
	"github.com/alucardeht/ytscribe-mcp/internal/youtube"
)

func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		os.Exit(m.Run())
	}
	goleak.VerifyTestMain(m)
}

// TestHelperProcess serves the real dispatcher over stdio when the test
// binary is re-executed with GO_WANT_HELPER_PROCESS=1. The extraction chain
// is a single in-memory strategy.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	engine := extract.NewEngine([]extract.Strategy{
		extract.StrategyFunc("memory", time.Second, func(_ context.Context, target extract.Target) extract.Outcome {
			if target == "abcdefghijk" {
				return extract.Outcome{Payload: "hello world"}
			}
			return extract.Outcome{Reason: "no captions"}
		}),
	})

	registry := tools.NewRegistry()
	registry.Register(tools.NewHealthTool(registry))
	for _, tool := range video.GetTools(youtube.NewClient(), engine, nil) {
		registry.Register(tool)
	}
	registry.Seal()

	mcp.NewServer(registry).ProcessStream(context.Background(), os.Stdin, os.Stdout)
}

func helperSession(t *testing.T) *Session {
	t.Helper()
	env := append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	s := NewSession(Config{
		Command:          os.Args[0],
		Args:             []string{"-test.run=^TestHelperProcess$"},
		HandshakeTimeout: 10 * time.Second,
		RequestTimeout:   10 * time.Second,
		Dial:             func() Conn { return transport.New(transport.WithEnv(env)) },
	})
	t.Cleanup(func() { s.Disconnect(context.Background()) })
	return s
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := helperSession(t)

	require.NoError(t, s.Connect(ctx))
	require.Equal(t, StateReady, s.State())

	t.Run("list contains the three operations", func(t *testing.T) {
		assert.Subset(t, s.ToolNames(), []string{
			video.TranscriptToolName,
			video.SearchToolName,
			video.ChannelToolName,
		})
		assert.Equal(t, "ytscribe MCP Server", s.ServerInfo().Name)
	})

	t.Run("transcript for a short link", func(t *testing.T) {
		res, err := s.Invoke(ctx, video.TranscriptToolName, map[string]interface{}{"url": "https://youtu.be/abcdefghijk"})
		require.NoError(t, err)
		assert.False(t, res.IsError)
		assert.Equal(t, "hello world", res.Text())
	})

	t.Run("invalid locator is a structured failure", func(t *testing.T) {
		res, err := s.Invoke(ctx, video.TranscriptToolName, map[string]interface{}{"url": "not-a-url"})
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Empty(t, res.Content)
		assert.NotEmpty(t, res.ErrorMessage)
	})

	t.Run("exhausted chain names the video", func(t *testing.T) {
		res, err := s.Invoke(ctx, video.TranscriptToolName, map[string]interface{}{"url": "https://www.youtube.com/watch?v=zzzzzzzzzzz"})
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, res.ErrorMessage, "'zzzzzzzzzzz'")
	})

	t.Run("unknown operation is a remote error", func(t *testing.T) {
		_, err := s.Invoke(ctx, "no_such_tool", nil)
		var remote *RemoteError
		require.True(t, errors.As(err, &remote), "got %v", err)
		assert.EqualValues(t, -32601, remote.Code)
		assert.Equal(t, StateReady, s.State())
	})

	t.Run("search without an api key is a remote error", func(t *testing.T) {
		_, err := s.Invoke(ctx, video.SearchToolName, map[string]interface{}{"query": "golang"})
		var remote *RemoteError
		require.True(t, errors.As(err, &remote), "got %v", err)
		assert.Contains(t, remote.Message, "API key")
	})

	require.NoError(t, s.Disconnect(ctx))
	assert.Equal(t, StateClosed, s.State())

	_, err := s.Invoke(ctx, video.TranscriptToolName, map[string]interface{}{"url": "https://youtu.be/abcdefghijk"})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestEndToEndPoolIsolatesSessions(t *testing.T) {
	ctx := context.Background()
	env := append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	pool := NewPool(func(string) *Session {
		return NewSession(Config{
			Command: os.Args[0],
			Args:    []string{"-test.run=^TestHelperProcess$"},
			Dial:    func() Conn { return transport.New(transport.WithEnv(env)) },
		})
	})
	defer pool.Close(ctx)

	a, err := pool.Get(ctx, "a")
	require.NoError(t, err)
	b, err := pool.Get(ctx, "b")
	require.NoError(t, err)
	require.NotSame(t, a, b)

	require.NoError(t, pool.Reset(ctx, "a"))
	assert.Equal(t, StateClosed, a.State())

	res, err := b.Invoke(ctx, video.TranscriptToolName, map[string]interface{}{"url": "https://youtu.be/abcdefghijk"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", res.Text())
}
