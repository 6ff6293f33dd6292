package extract

import (
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/alucardeht/ytscribe-mcp/internal/youtube"
)

var (
	cueTagPattern   = regexp.MustCompile(`<[^>]*>`)
	cueIndexPattern = regexp.MustCompile(`^\d+$`)
)

// ParseTimedText extracts the spoken text from a timedtext document. Both the
// classic format (<text> elements) and srv3 (<p> with nested <s>) are handled.
func ParseTimedText(body string) (string, error) {
	dec := youtube.NewXMLDecoder(body)

	var (
		segments []string
		current  strings.Builder
		depth    int
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "text" || t.Name.Local == "p" {
				if depth == 0 {
					current.Reset()
				}
				depth++
			}
		case xml.EndElement:
			if (t.Name.Local == "text" || t.Name.Local == "p") && depth > 0 {
				depth--
				if depth == 0 {
					if seg := CleanText(current.String()); seg != "" {
						segments = append(segments, seg)
					}
				}
			}
		case xml.CharData:
			if depth > 0 {
				current.Write(t)
			}
		}
	}

	return strings.Join(segments, " "), nil
}

// ParseSubtitles extracts text from SRT or WebVTT content, dropping cue
// numbers, timing lines, headers and the repeated lines auto captions carry.
func ParseSubtitles(content string) string {
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var (
		lines    []string
		inHeader = strings.HasPrefix(content, "WEBVTT")
		inNote   bool
	)

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)

		if line == "" {
			inHeader = false
			inNote = false
			continue
		}
		if inHeader || inNote {
			continue
		}
		if strings.HasPrefix(line, "NOTE") {
			inNote = true
			continue
		}
		if cueIndexPattern.MatchString(line) || strings.Contains(line, "-->") {
			continue
		}

		text := CleanText(cueTagPattern.ReplaceAllString(line, ""))
		if text == "" {
			continue
		}
		if n := len(lines); n > 0 && lines[n-1] == text {
			continue
		}
		lines = append(lines, text)
	}

	return strings.Join(lines, " ")
}

// CleanText unescapes HTML entities, normalises to NFC and collapses runs of
// whitespace into single spaces.
func CleanText(s string) string {
	// captions are often entity-encoded twice
	s = html.UnescapeString(html.UnescapeString(s))
	s = norm.NFC.String(s)
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
