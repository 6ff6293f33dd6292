package extract

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/alucardeht/ytscribe-mcp/internal/youtube"
)

// TimedTextStrategy asks the timedtext endpoint directly for each language
// without listing tracks first.
type TimedTextStrategy struct {
	client    *youtube.Client
	languages []string
	timeout   time.Duration
}

func NewTimedTextStrategy(client *youtube.Client, languages []string, timeout time.Duration) *TimedTextStrategy {
	return &TimedTextStrategy{client: client, languages: languages, timeout: timeout}
}

func (s *TimedTextStrategy) Name() string           { return StrategyTimedText }
func (s *TimedTextStrategy) Timeout() time.Duration { return s.timeout }

func (s *TimedTextStrategy) Extract(ctx context.Context, target Target) Outcome {
	var lastErr error
	for _, lang := range s.languages {
		page, err := s.client.Fetch(ctx, s.client.WebURL("/api/timedtext", url.Values{
			"v":    {string(target)},
			"lang": {lang},
			"fmt":  {"srv3"},
		}))
		if err != nil {
			lastErr = err
			continue
		}
		if !page.OK() || strings.TrimSpace(page.Body) == "" {
			continue
		}

		text, err := ParseTimedText(page.Body)
		if err != nil {
			lastErr = err
			continue
		}
		if strings.TrimSpace(text) != "" {
			return Outcome{Payload: text, Reason: "ok (lang " + lang + ")"}
		}
	}

	return Outcome{Reason: "no track for " + strings.Join(s.languages, ","), Err: lastErr}
}
