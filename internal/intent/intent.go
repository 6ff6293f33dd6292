// Package intent maps a free-form chat line to one of the server operations
// with fixed keyword rules. Transcript keywords win over channel keywords,
// which win over search keywords.
package intent

import (
	"regexp"
	"strings"
)

type Kind int

const (
	KindHelp Kind = iota
	KindTranscript
	KindChannel
	KindSearch
)

func (k Kind) String() string {
	switch k {
	case KindTranscript:
		return "transcript"
	case KindChannel:
		return "channel"
	case KindSearch:
		return "search"
	default:
		return "help"
	}
}

// DefaultQuery is searched when a search request names nothing else.
const DefaultQuery = "유튜브"

var (
	transcriptKeywords = []string{"자막", "transcript"}
	channelKeywords    = []string{"채널", "channel"}
	searchKeywords     = []string{"검색", "찾아", "영상", "search"}

	videoURLPattern = regexp.MustCompile(`https?://(?:(?:www|m)\.)?(?:youtube\.com/(?:watch\?(?:[^\s#]*&)?v=|shorts/|embed/|live/)|youtu\.be/)[A-Za-z0-9_-]{11}[^\s]*`)
)

type Intent struct {
	Kind  Kind
	URL   string
	Query string
}

func Parse(message string) Intent {
	lower := strings.ToLower(message)

	switch {
	case containsAny(lower, transcriptKeywords):
		return Intent{Kind: KindTranscript, URL: FindURL(message)}
	case containsAny(lower, channelKeywords):
		return Intent{Kind: KindChannel, URL: FindURL(message)}
	case containsAny(lower, searchKeywords):
		return Intent{Kind: KindSearch, Query: searchQuery(message)}
	default:
		return Intent{Kind: KindHelp}
	}
}

// FindURL returns the first video URL in message, or "".
func FindURL(message string) string {
	return videoURLPattern.FindString(message)
}

func searchQuery(message string) string {
	q := message
	for _, kw := range searchKeywords {
		q = replaceFold(q, kw)
	}
	q = strings.Join(strings.Fields(q), " ")
	if q == "" {
		return DefaultQuery
	}
	return q
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// replaceFold removes every case-insensitive occurrence of an ASCII or Hangul
// keyword from s.
func replaceFold(s, keyword string) string {
	pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(keyword))
	return pattern.ReplaceAllString(s, "")
}
