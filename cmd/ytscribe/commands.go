package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alucardeht/ytscribe-mcp/internal/rpc"
	"github.com/alucardeht/ytscribe-mcp/internal/tools/video"
	"github.com/alucardeht/ytscribe-mcp/internal/youtube"
	"github.com/alucardeht/ytscribe-mcp/pkg/protocol"
)

// oneShotKey names the pooled session used by single-call commands.
const oneShotKey = "cli"

func (a *app) invoke(ctx context.Context, key, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	s, err := a.session(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.Invoke(ctx, name, args)
}

func (a *app) toolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the server exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd.Context(), oneShotKey)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, s.Tools())
			}

			info := s.ServerInfo()
			heading(out, "%s %s", info.Name, info.Version)

			rows := make([][]string, 0, len(s.Tools()))
			for _, tool := range s.Tools() {
				rows = append(rows, []string{tool.Name, tool.Title, truncate(firstLine(tool.Description), 70)})
			}
			fmt.Fprintln(out, renderTable([]string{"Name", "Title", "Description"}, rows, nil))
			return nil
		},
	}
}

func (a *app) callCommand() *cobra.Command {
	var rawArgs string

	cmd := &cobra.Command{
		Use:   "call <tool> [key=value ...]",
		Short: "Call any tool with raw arguments",
		Example: `  ytscribe call get_youtube_transcript url=https://youtu.be/dQw4w9WgXcQ
  ytscribe call search_youtube_videos --args '{"query":"golang","max_results":3}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arguments, err := parseArguments(rawArgs, args[1:])
			if err != nil {
				return err
			}
			result, err := a.invoke(cmd.Context(), oneShotKey, args[0], arguments)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, result)
			}
			if result.IsError {
				return errors.New(result.ErrorMessage)
			}
			fmt.Fprintln(out, result.Text())
			return nil
		},
	}

	cmd.Flags().StringVar(&rawArgs, "args", "", "arguments as a JSON object")
	return cmd
}

// parseArguments merges a JSON object with key=value pairs. Pairs win.
func parseArguments(raw string, pairs []string) (map[string]interface{}, error) {
	arguments := make(map[string]interface{})
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &arguments); err != nil {
			return nil, fmt.Errorf("--args must be a JSON object: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			arguments[key] = decoded
		} else {
			arguments[key] = value
		}
	}
	return arguments, nil
}

func (a *app) transcriptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transcript <video-url>",
		Short: "Print the transcript of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.transcript(cmd.Context(), oneShotKey, args[0], cmd.OutOrStdout())
		},
	}
}

// transcript prints the transcript of videoURL. When none can be extracted
// it looks the video up through search and prints what it finds instead.
func (a *app) transcript(ctx context.Context, key, videoURL string, out io.Writer) error {
	result, err := a.invoke(ctx, key, video.TranscriptToolName, map[string]interface{}{"url": videoURL})
	if err != nil {
		return err
	}
	if a.jsonOut && !result.IsError {
		return printJSON(out, result)
	}
	if !result.IsError {
		fmt.Fprintln(out, result.Text())
		return nil
	}

	warning(out, "%s", result.ErrorMessage)

	videoID, idErr := youtube.ParseVideoID(videoURL)
	if idErr != nil {
		return nil
	}
	card, err := a.findVideo(ctx, key, videoID)
	if err != nil {
		log.Debug("alternative lookup failed", "video_id", videoID, "error", err)
		return nil
	}
	if card == nil {
		return nil
	}

	if a.jsonOut {
		return printJSON(out, card)
	}
	heading(out, "Video information")
	printCards(out, []youtube.VideoCard{*card})
	return nil
}

func (a *app) findVideo(ctx context.Context, key, videoID string) (*youtube.VideoCard, error) {
	cards, err := a.search(ctx, key, videoID, 5)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		if strings.Contains(cards[i].URL, videoID) {
			return &cards[i], nil
		}
	}
	return nil, nil
}

func (a *app) search(ctx context.Context, key, query string, maxResults int) ([]youtube.VideoCard, error) {
	args := map[string]interface{}{"query": query}
	if maxResults > 0 {
		args["max_results"] = maxResults
	}
	result, err := a.invoke(ctx, key, video.SearchToolName, args)
	if err != nil {
		return nil, err
	}
	if result.IsError {
		return nil, errors.New(result.ErrorMessage)
	}

	// one video per content item
	cards := make([]youtube.VideoCard, 0, len(result.Content))
	for _, item := range result.Content {
		var card youtube.VideoCard
		if err := json.Unmarshal([]byte(item.Text), &card); err != nil {
			log.Debug("skipping unreadable search item", "error", err)
			continue
		}
		cards = append(cards, card)
	}
	return cards, nil
}

func (a *app) searchCommand() *cobra.Command {
	var maxResults int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search for videos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printSearch(cmd.Context(), oneShotKey, strings.Join(args, " "), maxResults, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&maxResults, "max", "n", youtube.DefaultMaxResults, "maximum number of results")
	return cmd
}

func (a *app) printSearch(ctx context.Context, key, query string, maxResults int, out io.Writer) error {
	cards, err := a.search(ctx, key, query, maxResults)
	if err != nil {
		return err
	}
	if a.jsonOut {
		return printJSON(out, cards)
	}
	if len(cards) == 0 {
		warning(out, "no videos found for %q", query)
		return nil
	}
	printCards(out, cards)
	return nil
}

func printCards(out io.Writer, cards []youtube.VideoCard) {
	rows := make([][]string, 0, len(cards))
	for _, card := range cards {
		rows = append(rows, []string{
			truncate(card.Title, 50),
			truncate(card.ChannelName, 24),
			card.PublishedDate,
			formatCount(card.ViewCount),
			formatCount(card.LikeCount),
			card.URL,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Title", "Channel", "Published", "Views", "Likes", "URL"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}

func (a *app) channelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "channel <video-url>",
		Short: "Show the channel behind a video and its recent uploads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printChannel(cmd.Context(), oneShotKey, args[0], cmd.OutOrStdout())
		},
	}
}

func (a *app) printChannel(ctx context.Context, key, videoURL string, out io.Writer) error {
	result, err := a.invoke(ctx, key, video.ChannelToolName, map[string]interface{}{"video_url": videoURL})
	if err != nil {
		return err
	}
	if result.IsError {
		return errors.New(result.ErrorMessage)
	}

	var info youtube.ChannelInfo
	if err := json.Unmarshal([]byte(result.Text()), &info); err != nil {
		return fmt.Errorf("unexpected channel result: %w", err)
	}
	if a.jsonOut {
		return printJSON(out, info)
	}

	heading(out, "%s", info.ChannelTitle)
	cyan.Fprintln(out, info.ChannelURL)
	fmt.Fprintf(out, "Subscribers: %s  Views: %s  Videos: %s\n",
		formatCount(info.SubscriberCount), formatCount(info.ViewCount), formatCount(info.VideoCount))

	if len(info.Videos) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(info.Videos))
	for _, v := range info.Videos {
		rows = append(rows, []string{truncate(v.Title, 60), v.Published, v.Link})
	}
	fmt.Fprintln(out, renderTable([]string{"Recent video", "Published", "URL"}, rows, nil))
	return nil
}

// resetSession drops the pooled session for key so the next call spawns a
// fresh server.
func (a *app) resetSession(ctx context.Context, key string) error {
	if err := a.pool.Reset(ctx, key); err != nil && !errors.Is(err, rpc.ErrClosed) {
		return err
	}
	return nil
}
