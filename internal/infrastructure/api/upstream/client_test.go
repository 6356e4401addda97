package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       bool
		wantRateLimit bool
		wantPermanent bool
		wantMalformed bool
	}{
		{name: "ok", status: http.StatusOK, body: `[{"id":"bitcoin"}]`},
		{name: "rate_limited", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`, wantErr: true, wantRateLimit: true},
		{name: "not_found_is_permanent", status: http.StatusNotFound, body: `{"message":"city not found"}`, wantErr: true, wantPermanent: true},
		{name: "bad_request_is_permanent", status: http.StatusBadRequest, body: `{}`, wantErr: true, wantPermanent: true},
		{name: "server_error_is_transient", status: http.StatusBadGateway, body: `oops`, wantErr: true},
		{name: "html_body_is_malformed", status: http.StatusOK, body: `<html></html>`, wantErr: true, wantMalformed: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/json", r.Header.Get("Accept"))
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c := NewClient(ClientConfig{Timeout: time.Second})
			data, err := c.FetchJSON(context.Background(), srv.URL)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.JSONEq(t, tt.body, string(data))
				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.wantRateLimit, IsRateLimited(err))
			assert.Equal(t, tt.wantPermanent, IsPermanent(err))
			assert.Equal(t, tt.wantMalformed, errors.Is(err, ErrMalformedResponse))
		})
	}
}

func TestFetchJSONHonoursContext(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(ClientConfig{Timeout: 5 * time.Second})
	_, err := c.FetchJSON(ctx, srv.URL)
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("coingecko: %w", &StatusError{StatusCode: http.StatusTooManyRequests})
	assert.True(t, IsRateLimited(wrapped))
	assert.False(t, IsPermanent(wrapped))

	assert.True(t, IsPermanent(fmt.Errorf("weather: %w", ErrNotConfigured)))
	assert.True(t, IsPermanent(Permanent(errors.New("no ids"))))
	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanent(nil))
	assert.True(t, IsNotFound(&StatusError{StatusCode: http.StatusNotFound}))
}

func TestRedactURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://api.test/weather?appid=%2A%2A%2A&q=%2A%2A%2A",
		RedactURL("https://api.test/weather?q=London&appid=secret-key"))
	assert.Equal(t, "https://api.test/coins", RedactURL("https://api.test/coins"))
	assert.Equal(t, "<invalid url>", RedactURL("http://[::1"))
}

func TestFetchJSONHidesAPIKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"invalid key"}`)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{Timeout: time.Second})

	_, err := c.FetchJSON(context.Background(), srv.URL+"/weather?q=London&appid=secret-key")
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.NotContains(t, statusErr.URL, "secret-key")

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	_, err = c.FetchJSON(context.Background(), closedURL+"/weather?appid=secret-key")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-key")
}
