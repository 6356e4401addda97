package cryptocompare

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"crypto-weather-sync/internal/infrastructure/api/upstream"
	"crypto-weather-sync/internal/infrastructure/cache/upstreamcache"
)

const newsBody = `{"Type":100,"Data":[
  {"title":"One","body":"First story","url":"https://news.test/1","source":"coindesk","published_on":1700000000},
  {"title":"Two","body":"","url":"https://news.test/2","source":"decrypt","published_on":1700000100},
  {"title":"Three","body":"x","url":"u3","source":"s","published_on":1},
  {"title":"Four","body":"x","url":"u4","source":"s","published_on":2},
  {"title":"Five","body":"x","url":"u5","source":"s","published_on":3},
  {"title":"Six","body":"x","url":"u6","source":"s","published_on":4}
]}`

func newTestSource(t *testing.T, handler http.HandlerFunc) (*Source, *clocktesting.FakeClock) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	fc := clocktesting.NewFakeClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	cache := upstreamcache.New(upstreamcache.Options{
		Name:  "cryptocompare",
		Clock: fc,
		Retry: upstreamcache.RetryPolicy{Attempts: 2, BaseDelay: time.Second},
		Wait:  func(context.Context, time.Duration) error { return nil },
	})
	client := upstream.NewClient(upstream.ClientConfig{Timeout: time.Second})
	return NewSource(client, cache, Config{BaseURL: srv.URL + "/"}), fc
}

func TestLatestMapsTopFiveItems(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/news/", r.URL.Path)
		assert.Equal(t, "EN", r.URL.Query().Get("lang"))
		fmt.Fprint(w, newsBody)
	})

	res, err := src.Latest(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Stale)
	require.Len(t, res.Items, DefaultLimit)

	assert.Equal(t, NewsItem{
		Title:       "One",
		Description: "First story",
		URL:         "https://news.test/1",
		Source:      "coindesk",
		PublishedAt: time.Unix(1700000000, 0).UTC(),
	}, res.Items[0])
	assert.Equal(t, "No description available", res.Items[1].Description)
	assert.Equal(t, "Five", res.Items[4].Title)
}

func TestLatestServesCacheAndStaleFallback(t *testing.T) {
	var calls int32
	var failing atomic.Bool
	src, fc := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if failing.Load() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, newsBody)
	})
	ctx := context.Background()

	_, err := src.Latest(ctx)
	require.NoError(t, err)
	fc.Step(time.Minute)
	_, err = src.Latest(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	failing.Store(true)
	fc.Step(5 * time.Minute)
	res, err := src.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Len(t, res.Items, DefaultLimit)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestLatestWithoutDataIsRetried(t *testing.T) {
	var calls int32
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"Type":100,"Message":"rate limit","Data":[]}`)
	})

	_, err := src.Latest(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream.ErrMalformedResponse)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}
