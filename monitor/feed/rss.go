// Package feed lists newly published package releases from the package
// index RSS feed, ordered by publish time.
package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mantisec/pkgwatch/monitor"
	"github.com/mantisec/pkgwatch/monitor/checkpoint"
)

// pubDate format used by the index feed
const rssTimeLayout = "Mon, 02 Jan 2006 15:04:05 MST"

type rssDoc struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	GUID    string `xml:"guid"`
	PubDate string `xml:"pubDate"`
}

// RSSSource reads the package index "newest releases" RSS feed. The feed
// title carries "<name> <version>"; entries at or before the cursor are
// filtered out.
type RSSSource struct {
	FeedURL      string
	InspectorURL string
	Client       *http.Client
}

var _ monitor.Source = (*RSSSource)(nil)

func NewRSSSource(feedURL, inspectorURL string, client *http.Client) *RSSSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &RSSSource{
		FeedURL:      strings.TrimSuffix(feedURL, "/"),
		InspectorURL: strings.TrimSuffix(inspectorURL, "/"),
		Client:       client,
	}
}

func (s *RSSSource) ListSince(ctx context.Context, cur checkpoint.Cursor) ([]monitor.Release, error) {
	since, err := cur.Time()
	if err != nil {
		return nil, fmt.Errorf("bad cursor %q: %w", cur, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.FeedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", monitor.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", monitor.ErrSourceUnavailable, resp.StatusCode)
	}

	var doc rssDoc
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decoding feed: %v", monitor.ErrSourceUnavailable, err)
	}

	var out []monitor.Release
	for _, item := range doc.Channel.Items {
		rel, err := s.parseItem(item)
		if err != nil {
			// one malformed entry should not sink the whole poll
			continue
		}
		if !since.IsZero() && !rel.PublishedAt.After(since) {
			continue
		}
		out = append(out, rel)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.Before(out[j].PublishedAt)
	})
	return out, nil
}

func (s *RSSSource) parseItem(item rssItem) (monitor.Release, error) {
	name, version, ok := strings.Cut(strings.TrimSpace(item.Title), " ")
	if !ok || name == "" || version == "" {
		return monitor.Release{}, fmt.Errorf("malformed feed title: %q", item.Title)
	}
	published, err := time.Parse(rssTimeLayout, item.PubDate)
	if err != nil {
		return monitor.Release{}, fmt.Errorf("malformed pubDate %q: %w", item.PubDate, err)
	}

	pkgURL := item.Link
	if pkgURL == "" {
		pkgURL = fmt.Sprintf("%s/project/%s/%s/", s.baseURL(), url.PathEscape(name), url.PathEscape(version))
	}
	return monitor.Release{
		Name:         name,
		Version:      version,
		PublishedAt:  published.UTC(),
		ArtifactURL:  item.GUID,
		PackageURL:   pkgURL,
		InspectorURL: fmt.Sprintf("%s/project/%s/%s/", s.InspectorURL, url.PathEscape(name), url.PathEscape(version)),
	}, nil
}

func (s *RSSSource) baseURL() string {
	u, err := url.Parse(s.FeedURL)
	if err != nil {
		return s.FeedURL
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String()
}
