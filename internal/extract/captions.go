package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/alucardeht/ytscribe-mcp/internal/youtube"
)

type captionTrack struct {
	LangCode string `xml:"lang_code,attr"`
	Name     string `xml:"name,attr"`
	Kind     string `xml:"kind,attr"`
}

type trackList struct {
	Tracks []captionTrack `xml:"track"`
}

// CaptionsStrategy lists the official caption tracks of a video and fetches
// the best one for the preferred languages.
type CaptionsStrategy struct {
	client    *youtube.Client
	languages []string
	timeout   time.Duration
}

func NewCaptionsStrategy(client *youtube.Client, languages []string, timeout time.Duration) *CaptionsStrategy {
	return &CaptionsStrategy{client: client, languages: languages, timeout: timeout}
}

func (s *CaptionsStrategy) Name() string           { return StrategyCaptions }
func (s *CaptionsStrategy) Timeout() time.Duration { return s.timeout }

func (s *CaptionsStrategy) Extract(ctx context.Context, target Target) Outcome {
	page, err := s.client.Fetch(ctx, s.client.WebURL("/api/timedtext", url.Values{
		"type": {"list"},
		"v":    {string(target)},
	}))
	if err != nil {
		return Outcome{Err: err}
	}
	if !page.OK() {
		return Outcome{Err: fmt.Errorf("track list: HTTP %d", page.StatusCode)}
	}
	if strings.TrimSpace(page.Body) == "" {
		return Outcome{Reason: "no caption tracks"}
	}

	var list trackList
	if err := youtube.NewXMLDecoder(page.Body).Decode(&list); err != nil {
		return Outcome{Err: fmt.Errorf("track list: %w", err)}
	}
	if len(list.Tracks) == 0 {
		return Outcome{Reason: "no caption tracks"}
	}

	var lastErr error
	for _, track := range orderTracks(list.Tracks, s.languages) {
		q := url.Values{"v": {string(target)}, "lang": {track.LangCode}}
		if track.Name != "" {
			q.Set("name", track.Name)
		}
		if track.Kind != "" {
			q.Set("kind", track.Kind)
		}

		page, err := s.client.Fetch(ctx, s.client.WebURL("/api/timedtext", q))
		if err != nil {
			lastErr = err
			continue
		}
		if !page.OK() {
			continue
		}
		text, err := ParseTimedText(page.Body)
		if err != nil {
			lastErr = err
			continue
		}
		if strings.TrimSpace(text) != "" {
			return Outcome{Payload: text, Reason: "ok (lang " + track.LangCode + ")"}
		}
	}

	return Outcome{Reason: "caption tracks were empty", Err: lastErr}
}

// orderTracks returns the tracks in preferred language order, followed by the
// first listed track when none of them matched.
func orderTracks(tracks []captionTrack, languages []string) []captionTrack {
	var ordered []captionTrack
	for _, lang := range languages {
		for _, t := range tracks {
			if strings.EqualFold(t.LangCode, lang) {
				ordered = append(ordered, t)
				break
			}
		}
	}
	if len(ordered) == 0 && len(tracks) > 0 {
		ordered = append(ordered, tracks[0])
	}
	return ordered
}
