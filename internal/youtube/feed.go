package youtube

import (
	"context"
	"encoding/xml"
	"io"
	"net/url"
	"strings"
)

const (
	RecentVideoLimit = 5
	updatedLayout    = "2006-01-02 15:04:05"
)

type FeedVideo struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Published   string `json:"published"`
	UpdatedDate string `json:"updatedDate"`
}

type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Entries []atomEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type atomEntry struct {
	Title     *string `xml:"http://www.w3.org/2005/Atom title"`
	Published *string `xml:"http://www.w3.org/2005/Atom published"`
	Link      *struct {
		Href string `xml:"href,attr"`
	} `xml:"http://www.w3.org/2005/Atom link"`
}

// RecentVideos reads up to limit entries from the channel's Atom feed. Any
// failure yields an empty list.
func (c *Client) RecentVideos(ctx context.Context, channelID string, limit int) []FeedVideo {
	feedURL := c.WebURL("/feeds/videos.xml", url.Values{"channel_id": {channelID}})

	page, err := c.Fetch(ctx, feedURL)
	if err != nil {
		log.Warn("channel feed unavailable", "channel", channelID, "error", err)
		return []FeedVideo{}
	}
	if !page.OK() {
		log.Warn("channel feed unavailable", "channel", channelID, "status", page.StatusCode)
		return []FeedVideo{}
	}

	videos, err := parseFeed(page.Body, limit, c.now().Format(updatedLayout))
	if err != nil {
		log.Warn("channel feed unreadable", "channel", channelID, "error", err)
		return []FeedVideo{}
	}
	return videos
}

// parseFeed keeps only entries that carry a title, link and published date.
func parseFeed(body string, limit int, updated string) ([]FeedVideo, error) {
	var feed atomFeed
	if err := NewXMLDecoder(body).Decode(&feed); err != nil {
		return nil, err
	}

	entries := feed.Entries
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	videos := make([]FeedVideo, 0, len(entries))
	for _, e := range entries {
		if e.Title == nil || e.Link == nil || e.Published == nil {
			continue
		}
		videos = append(videos, FeedVideo{
			Title:       *e.Title,
			Link:        e.Link.Href,
			Published:   *e.Published,
			UpdatedDate: updated,
		})
	}
	return videos, nil
}

// NewXMLDecoder reads a document that DecodeBody already converted to UTF-8,
// so any encoding named in its declaration is ignored.
func NewXMLDecoder(body string) *xml.Decoder {
	dec := xml.NewDecoder(strings.NewReader(body))
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return dec
}
