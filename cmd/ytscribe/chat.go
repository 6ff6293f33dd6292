package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alucardeht/ytscribe-mcp/internal/intent"
	"github.com/alucardeht/ytscribe-mcp/internal/rpc"
)

const (
	chatPreviewRunes = 500
	chatSearchLimit  = 5
)

const chatHelp = `안녕하세요! 유튜브 검색이나 자막 추출을 도와드릴 수 있습니다.
  자막 https://youtu.be/VIDEO_ID     transcript of a video
  채널 https://youtu.be/VIDEO_ID     channel behind a video
  검색 <검색어>                      search for videos
  /reset  restart the server session
  /quit   leave`

func (a *app) chatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive keyword chat over one server session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.chat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), isTerminal(os.Stdin))
		},
	}
}

// chat reads one message per line and answers each with a tool call. Every
// chat gets its own pooled session; /reset replaces it.
func (a *app) chat(ctx context.Context, in io.Reader, out io.Writer, interactive bool) error {
	key := rpc.NewKey()
	defer a.resetSession(context.Background(), key)

	if interactive {
		fmt.Fprintln(out, chatHelp)
	}

	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			cyan.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := a.resetSession(ctx, key); err != nil {
				warning(out, "reset failed: %v", err)
				continue
			}
			key = rpc.NewKey()
			success(out, "session reset")
			continue
		case "/help":
			fmt.Fprintln(out, chatHelp)
			continue
		}

		if err := a.answer(ctx, key, line, out); err != nil {
			var remote *rpc.RemoteError
			if errors.As(err, &remote) {
				warning(out, "오류가 발생했습니다: %s", remote.Message)
				continue
			}
			// the pool replaces a dead session on the next call
			warning(out, "server session lost: %v", err)
			warning(out, "send another message to reconnect")
		}
	}
}

func (a *app) answer(ctx context.Context, key, message string, out io.Writer) error {
	in := intent.Parse(message)
	log.Debug("chat intent", "kind", in.Kind.String(), "url", in.URL, "query", in.Query)

	switch in.Kind {
	case intent.KindTranscript:
		if in.URL == "" {
			fmt.Fprintln(out, "유튜브 URL을 제공해주세요. 예: https://www.youtube.com/watch?v=VIDEO_ID")
			return nil
		}
		var buf strings.Builder
		if err := a.transcript(ctx, key, in.URL, &buf); err != nil {
			return err
		}
		fmt.Fprintln(out, preview(buf.String(), chatPreviewRunes))
		return nil

	case intent.KindChannel:
		if in.URL == "" {
			fmt.Fprintln(out, "유튜브 URL을 제공해주세요. 예: https://www.youtube.com/watch?v=VIDEO_ID")
			return nil
		}
		return a.printChannel(ctx, key, in.URL, out)

	case intent.KindSearch:
		heading(out, "'%s'에 대한 검색 결과입니다:", in.Query)
		return a.printSearch(ctx, key, in.Query, chatSearchLimit, out)

	default:
		fmt.Fprintln(out, chatHelp)
		return nil
	}
}

func preview(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
