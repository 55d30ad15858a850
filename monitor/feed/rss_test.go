package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantisec/pkgwatch/monitor"
	"github.com/mantisec/pkgwatch/monitor/checkpoint"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>newest packages</title>
    <item>
      <title>pyrogram-helper 0.2.1</title>
      <link>https://index.example.org/project/pyrogram-helper/0.2.1/</link>
      <guid>https://files.example.org/pyrogram-helper-0.2.1.tar.gz</guid>
      <pubDate>Wed, 01 May 2024 12:00:05 GMT</pubDate>
    </item>
    <item>
      <title>requestz 1.0.0</title>
      <link>https://index.example.org/project/requestz/1.0.0/</link>
      <guid>https://files.example.org/requestz-1.0.0.tar.gz</guid>
      <pubDate>Wed, 01 May 2024 11:58:00 GMT</pubDate>
    </item>
    <item>
      <title>malformed-entry</title>
      <pubDate>not a date</pubDate>
    </item>
    <item>
      <title>oldpkg 3.3.3</title>
      <link>https://index.example.org/project/oldpkg/3.3.3/</link>
      <guid>https://files.example.org/oldpkg-3.3.3.tar.gz</guid>
      <pubDate>Wed, 01 May 2024 09:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

func TestRSSSourceListSince(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	src := NewRSSSource(srv.URL, "https://inspector.example.org", srv.Client())

	// cursor between oldpkg and the two newer entries
	cur := checkpoint.FromTime(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC))
	rels, err := src.ListSince(ctx, cur)
	require.NoError(t, err)
	require.Len(t, rels, 2)

	// ascending publish order
	assert.Equal("requestz", rels[0].Name)
	assert.Equal("1.0.0", rels[0].Version)
	assert.Equal("pyrogram-helper", rels[1].Name)
	assert.Equal("0.2.1", rels[1].Version)
	assert.True(rels[0].PublishedAt.Before(rels[1].PublishedAt))

	assert.Equal("https://files.example.org/requestz-1.0.0.tar.gz", rels[0].ArtifactURL)
	assert.Equal("https://inspector.example.org/project/requestz/1.0.0/", rels[0].InspectorURL)

	// empty cursor returns everything parseable
	rels, err = src.ListSince(ctx, "")
	require.NoError(t, err)
	assert.Len(rels, 3)

	// cursor at the newest entry excludes it (strictly after)
	cur = checkpoint.FromTime(time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC))
	rels, err = src.ListSince(ctx, cur)
	require.NoError(t, err)
	assert.Empty(rels)
}

func TestRSSSourceUnavailable(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewRSSSource(srv.URL, "https://inspector.example.org", srv.Client())
	_, err := src.ListSince(ctx, "")
	assert.ErrorIs(err, monitor.ErrSourceUnavailable)

	// connection refused
	srv.Close()
	_, err = src.ListSince(ctx, "")
	assert.ErrorIs(err, monitor.ErrSourceUnavailable)
}
