package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimedText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "classic",
			body: `<?xml version="1.0" encoding="utf-8" ?><transcript>` +
				`<text start="0" dur="1.5">hello</text>` +
				`<text start="1.5" dur="2">world &amp;#39;s  best</text>` +
				`</transcript>`,
			want: "hello world 's best",
		},
		{
			name: "srv3 with word spans",
			body: `<timedtext format="3"><body>` +
				`<p t="0" d="1000"><s>안녕</s><s> 하세요</s></p>` +
				`<p t="1000" d="500">` + "\n" + `</p>` +
				`<p t="1500" d="900">second line</p>` +
				`</body></timedtext>`,
			want: "안녕 하세요 second line",
		},
		{
			name: "empty document",
			body: `<transcript></transcript>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimedText(tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimedTextMalformed(t *testing.T) {
	_, err := ParseTimedText(`<transcript><text>open`)
	assert.Error(t, err)
}

func TestParseSubtitles(t *testing.T) {
	t.Run("srt", func(t *testing.T) {
		srt := "\ufeff1\r\n00:00:01,000 --> 00:00:02,000\r\n<i>Hello</i> there\r\n\r\n" +
			"2\r\n00:00:02,000 --> 00:00:03,000\r\nGeneral Kenobi\r\n"
		assert.Equal(t, "Hello there General Kenobi", ParseSubtitles(srt))
	})

	t.Run("vtt with header notes and repeats", func(t *testing.T) {
		vtt := "WEBVTT\nKind: captions\nLanguage: ko\n\n" +
			"NOTE\nthis is a comment\n\n" +
			"00:00:00.000 --> 00:00:01.000 align:start\n<c>첫 번째</c>\n\n" +
			"00:00:01.000 --> 00:00:02.000\n첫 번째\n두 번째\n\n"
		assert.Equal(t, "첫 번째 두 번째", ParseSubtitles(vtt))
	})

	t.Run("only timings", func(t *testing.T) {
		assert.Empty(t, ParseSubtitles("1\n00:00:01,000 --> 00:00:02,000\n\n"))
	})
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Tom & Jerry", CleanText("Tom &amp;amp; \n Jerry"))
	assert.Equal(t, "\ud55c", CleanText("\u1112\u1161\u11ab"))
	assert.Empty(t, CleanText(" \t\n "))
}
