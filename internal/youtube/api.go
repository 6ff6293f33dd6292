package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type VideoCard struct {
	Title         string `json:"title"`
	PublishedDate string `json:"publishedDate"`
	ChannelName   string `json:"channelName"`
	ChannelID     string `json:"channelId"`
	ThumbnailURL  string `json:"thumbnailUrl"`
	ViewCount     int64  `json:"viewCount"`
	LikeCount     int64  `json:"likeCount"`
	URL           string `json:"url"`
}

type ChannelInfo struct {
	ChannelTitle    string      `json:"channelTitle"`
	ChannelURL      string      `json:"channelUrl"`
	SubscriberCount string      `json:"subscriberCount"`
	ViewCount       string      `json:"viewCount"`
	VideoCount      string      `json:"videoCount"`
	Videos          []FeedVideo `json:"videos"`
}

type thumbnail struct {
	URL string `json:"url"`
}

type snippet struct {
	Title        string               `json:"title"`
	PublishedAt  string               `json:"publishedAt"`
	ChannelID    string               `json:"channelId"`
	ChannelTitle string               `json:"channelTitle"`
	Thumbnails   map[string]thumbnail `json:"thumbnails"`
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type resourceResponse struct {
	Items []struct {
		ID         string            `json:"id"`
		Snippet    snippet           `json:"snippet"`
		Statistics map[string]string `json:"statistics"`
	} `json:"items"`
}

// SearchVideos runs a keyword search restricted to videos and enriches each
// hit with its statistics. maxResults <= 0 means DefaultMaxResults.
func (c *Client) SearchVideos(ctx context.Context, query string, maxResults int) ([]VideoCard, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if maxResults > MaxSearchResults {
		maxResults = MaxSearchResults
	}

	var search searchResponse
	err := c.getJSON(ctx, "search", url.Values{
		"part":       {"snippet"},
		"q":          {query},
		"type":       {"video"},
		"maxResults": {strconv.Itoa(maxResults)},
	}, &search)
	if err != nil {
		return nil, fmt.Errorf("YouTube search failed: %w", err)
	}

	ids := make([]string, 0, len(search.Items))
	for _, item := range search.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	if len(ids) == 0 {
		return []VideoCard{}, nil
	}

	var details resourceResponse
	err = c.getJSON(ctx, "videos", url.Values{
		"part": {"snippet,statistics"},
		"id":   {strings.Join(ids, ",")},
	}, &details)
	if err != nil {
		return nil, fmt.Errorf("YouTube video lookup failed: %w", err)
	}

	videos := make([]VideoCard, 0, len(details.Items))
	for _, item := range details.Items {
		videos = append(videos, VideoCard{
			Title:         orDefault(item.Snippet.Title, "N/A"),
			PublishedDate: item.Snippet.PublishedAt,
			ChannelName:   orDefault(item.Snippet.ChannelTitle, "N/A"),
			ChannelID:     item.Snippet.ChannelID,
			ThumbnailURL:  item.Snippet.Thumbnails["high"].URL,
			ViewCount:     parseCount(item.Statistics["viewCount"]),
			LikeCount:     parseCount(item.Statistics["likeCount"]),
			URL:           WatchURL(item.ID),
		})
	}
	return videos, nil
}

// ChannelInfo resolves the channel that published videoID and lists its most
// recent uploads from the public feed.
func (c *Client) ChannelInfo(ctx context.Context, videoID string) (*ChannelInfo, error) {
	var video resourceResponse
	err := c.getJSON(ctx, "videos", url.Values{
		"part": {"snippet,statistics"},
		"id":   {videoID},
	}, &video)
	if err != nil {
		return nil, fmt.Errorf("YouTube video lookup failed: %w", err)
	}
	if len(video.Items) == 0 {
		return nil, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	channelID := video.Items[0].Snippet.ChannelID
	if channelID == "" {
		return nil, fmt.Errorf("video %s has no channel: %w", videoID, ErrNotFound)
	}

	var channel resourceResponse
	err = c.getJSON(ctx, "channels", url.Values{
		"part": {"snippet,statistics"},
		"id":   {channelID},
	}, &channel)
	if err != nil {
		return nil, fmt.Errorf("YouTube channel lookup failed: %w", err)
	}
	if len(channel.Items) == 0 {
		return nil, fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}

	item := channel.Items[0]
	return &ChannelInfo{
		ChannelTitle:    orDefault(item.Snippet.Title, "N/A"),
		ChannelURL:      ChannelURL(channelID),
		SubscriberCount: orDefault(item.Statistics["subscriberCount"], "0"),
		ViewCount:       orDefault(item.Statistics["viewCount"], "0"),
		VideoCount:      orDefault(item.Statistics["videoCount"], "0"),
		Videos:          c.RecentVideos(ctx, channelID, RecentVideoLimit),
	}, nil
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
