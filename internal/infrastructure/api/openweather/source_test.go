package openweather

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

const londonBody = `{"name":"London","dt":1767225600,"main":{"temp":12.3,"humidity":81},"weather":[{"main":"Clouds","description":"broken clouds"}]}`

func newTestSource(t *testing.T, apiKey string, handler http.HandlerFunc) (*Source, *clocktesting.FakeClock) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	fc := clocktesting.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := upstreamcache.New(upstreamcache.Options{
		Name:  "openweather",
		Clock: fc,
		Retry: upstreamcache.RetryPolicy{Attempts: 3},
	})
	client := upstream.NewClient(upstream.ClientConfig{Timeout: time.Second})
	return NewSource(client, cache, Config{BaseURL: srv.URL, APIKey: apiKey}), fc
}

func TestCurrent(t *testing.T) {
	src, _ := newTestSource(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		assert.Equal(t, "New York", r.URL.Query().Get("q"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		assert.Equal(t, "secret", r.URL.Query().Get("appid"))
		fmt.Fprint(w, londonBody)
	})

	snap, stale, err := src.Current(context.Background(), " New York ")
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, "New York", snap.City)
	assert.Equal(t, 12.3, snap.Temperature)
	assert.Equal(t, 81.0, snap.Humidity)
	assert.Equal(t, "Clouds", snap.Condition)
	assert.Equal(t, "broken clouds", snap.Description)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), snap.ObservedAt)
}

func TestCurrentCityNotFoundIsPermanent(t *testing.T) {
	var calls int32
	src, _ := newTestSource(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"cod":"404","message":"city not found"}`)
	})

	_, _, err := src.Current(context.Background(), "Atlantis")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCityNotFound)
	assert.True(t, upstream.IsPermanent(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCurrentRequiresAPIKey(t *testing.T) {
	src, _ := newTestSource(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, _, err := src.Current(context.Background(), "London")
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream.ErrNotConfigured)
	assert.True(t, upstream.IsPermanent(err))
}

func TestCurrentRejectsEmptyCity(t *testing.T) {
	src, _ := newTestSource(t, "secret", func(w http.ResponseWriter, r *http.Request) {})

	_, _, err := src.Current(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, upstream.IsPermanent(err))
}

func TestCurrentFallsBackToStale(t *testing.T) {
	var down atomic.Bool
	src, fc := newTestSource(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, londonBody)
	})
	ctx := context.Background()

	_, _, err := src.Current(ctx, "London")
	require.NoError(t, err)

	down.Store(true)
	fc.Step(6 * time.Minute)

	snap, stale, err := src.Current(ctx, "London")
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, 12.3, snap.Temperature)
}

func TestParseSnapshotWithoutTimestamp(t *testing.T) {
	fetchedAt := time.Date(2026, 2, 2, 2, 2, 2, 0, time.UTC)
	snap := parseSnapshot("Oslo", []byte(`{"main":{"temp":-3.5},"weather":[]}`), fetchedAt)

	assert.Equal(t, -3.5, snap.Temperature)
	assert.Empty(t, snap.Condition)
	assert.Equal(t, fetchedAt, snap.ObservedAt)
}
