package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, conn Conn) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("event stream did not finish, got %d events", len(events))
		}
	}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestWebSocketChannelDeliversFrames(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		ctx := r.Context()
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"bitcoin":"50000.5"}`))
		_ = c.Write(ctx, websocket.MessageText, []byte(`not json`))
		_ = c.Close(websocket.StatusGoingAway, "bye")
	}))
	defer srv.Close()

	ch := NewWebSocketChannel(time.Second)
	conn, err := ch.Open(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	assert.NotEmpty(t, conn.ID())

	events := collect(t, conn)
	require.Len(t, events, 5)
	assert.Equal(t, []EventType{EventOpen, EventMessage, EventMessage, EventError, EventClose}, eventTypes(events))
	assert.JSONEq(t, `{"bitcoin":"50000.5"}`, string(events[1].Data))
	assert.Equal(t, "not json", string(events[2].Data), "bad frames are delivered, not fatal")
	assert.Error(t, events[3].Err)
}

func TestWebSocketChannelDialFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	conn, err := NewWebSocketChannel(time.Second).Open(context.Background(), url)
	require.NoError(t, err)

	events := collect(t, conn)
	assert.Equal(t, []EventType{EventError, EventClose}, eventTypes(events))
}

func TestWebSocketChannelCloseStopsReading(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	conn, err := NewWebSocketChannel(time.Second).Open(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)

	first := <-conn.Events()
	require.Equal(t, EventOpen, first.Type)

	// Первый Close может вернуть ошибку закрывающего рукопожатия, второй - no-op
	_ = conn.Close()
	require.NoError(t, conn.Close())

	// После Close ошибка чтения не сообщается, только закрытие
	rest := collect(t, conn)
	assert.Equal(t, []EventType{EventClose}, eventTypes(rest))
}

func TestWebSocketChannelRejectsEmptyURL(t *testing.T) {
	t.Parallel()

	_, err := NewWebSocketChannel(0).Open(context.Background(), "")
	assert.Error(t, err)
}
