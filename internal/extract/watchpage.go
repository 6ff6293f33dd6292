package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/alucardeht/ytscribe-mcp/internal/youtube"
)

// minScrapedLength guards against stub tracks that hold only a few characters.
const minScrapedLength = 10

var (
	captionTracksPattern = regexp.MustCompile(`"captionTracks":\[(.*?)\]`)
	baseURLPattern       = regexp.MustCompile(`"baseUrl":"((?:[^"\\]|\\.)*)"`)
)

// WatchPageStrategy scrapes the caption track URLs embedded in the watch page
// player config and fetches them in page order.
type WatchPageStrategy struct {
	client  *youtube.Client
	timeout time.Duration
}

func NewWatchPageStrategy(client *youtube.Client, timeout time.Duration) *WatchPageStrategy {
	return &WatchPageStrategy{client: client, timeout: timeout}
}

func (s *WatchPageStrategy) Name() string           { return StrategyWatchPage }
func (s *WatchPageStrategy) Timeout() time.Duration { return s.timeout }

func (s *WatchPageStrategy) Extract(ctx context.Context, target Target) Outcome {
	page, err := s.client.Fetch(ctx, s.client.WatchURL(string(target)))
	if err != nil {
		return Outcome{Err: err}
	}
	if !page.OK() {
		return Outcome{Err: fmt.Errorf("watch page: HTTP %d", page.StatusCode)}
	}

	urls := captionURLs(page.Body)
	if len(urls) == 0 {
		return Outcome{Reason: "no captionTracks on watch page"}
	}

	var lastErr error
	for _, u := range urls {
		track, err := s.client.Fetch(ctx, u)
		if err != nil {
			lastErr = err
			continue
		}
		if !track.OK() {
			continue
		}
		text, err := ParseTimedText(track.Body)
		if err != nil {
			lastErr = err
			continue
		}
		if len(strings.TrimSpace(text)) > minScrapedLength {
			return Outcome{Payload: text, Reason: "ok (watch page)"}
		}
	}

	return Outcome{Reason: "caption tracks were empty", Err: lastErr}
}

// captionURLs finds the player script that declares captionTracks and returns
// every baseUrl it lists.
func captionURLs(document string) []string {
	var scripts []string

	root, err := html.Parse(strings.NewReader(document))
	if err == nil {
		var walk func(n *html.Node)
		walk = func(n *html.Node) {
			if n.Type == html.ElementNode && n.Data == "script" && n.FirstChild != nil {
				if text := n.FirstChild.Data; strings.Contains(text, `"captionTracks"`) {
					scripts = append(scripts, text)
				}
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(root)
	}
	if len(scripts) == 0 {
		scripts = []string{document}
	}

	var urls []string
	for _, script := range scripts {
		m := captionTracksPattern.FindStringSubmatch(script)
		if m == nil {
			continue
		}
		for _, bm := range baseURLPattern.FindAllStringSubmatch(m[1], -1) {
			var u string
			if err := json.Unmarshal([]byte(`"`+bm[1]+`"`), &u); err != nil {
				continue
			}
			urls = append(urls, u)
		}
	}
	return urls
}
