package youtube

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var ErrInvalidURL = errors.New("invalid YouTube URL")

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/|youtube\.com/shorts/|youtube\.com/live/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/watch\?.*v=([a-zA-Z0-9_-]{11})`),
}

// ParseVideoID extracts the 11 character video id from a watch, short-link,
// embed, shorts or live URL.
func ParseVideoID(locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", ErrInvalidURL
	}

	for _, pattern := range videoIDPatterns {
		if m := pattern.FindStringSubmatch(locator); m != nil {
			return m[1], nil
		}
	}

	return "", ErrInvalidURL
}

func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(videoID)
}

func ChannelURL(channelID string) string {
	return "https://www.youtube.com/channel/" + channelID
}
