package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playmatatu/duel/internal/events"
)

func serveHub(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if err := hub.Serve(w, r, q.Get("match"), q.Get("user")); err != nil {
			t.Logf("upgrade failed: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, match, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?match=" + match + "&user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var e events.Event
	require.NoError(t, json.Unmarshal(data, &e))
	return e
}

func TestBroadcastReachesOnlyTheMatchRoom(t *testing.T) {
	hub := NewHub(slog.Default(), nil)
	srv := serveHub(t, hub)

	alice := dial(t, srv, "m1", "alice")
	carol := dial(t, srv, "m2", "carol")
	require.Eventually(t, func() bool { return hub.RoomSize("m1") == 1 && hub.RoomSize("m2") == 1 }, time.Second, 5*time.Millisecond)

	Dispatch(hub, events.Event{Type: events.ProgressMerged, MatchID: "m1", UserID: "bob"})
	Dispatch(hub, events.Event{Type: events.MatchCompleted, MatchID: "m2"})

	assert.Equal(t, events.ProgressMerged, readEvent(t, alice).Type)
	assert.Equal(t, events.MatchCompleted, readEvent(t, carol).Type)
}

func TestClosedSocketLeavesRoom(t *testing.T) {
	hub := NewHub(slog.Default(), nil)
	srv := serveHub(t, hub)

	conn := dial(t, srv, "m1", "alice")
	require.Eventually(t, func() bool { return hub.RoomSize("m1") == 1 }, time.Second, 5*time.Millisecond)
	conn.Close()
	assert.Eventually(t, func() bool { return hub.RoomSize("m1") == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSubscriberForwardsRedisEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hub := NewHub(slog.Default(), nil)
	srv := serveHub(t, hub)
	conn := dial(t, srv, "m1", "alice")
	require.Eventually(t, func() bool { return hub.RoomSize("m1") == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, StartEventSubscriber(ctx, rdb, hub, slog.Default()))

	pub := events.NewRedisPublisher(rdb, slog.Default())
	require.NoError(t, pub.Publish(ctx, events.Event{Type: events.MatchStarted, MatchID: "m1"}))

	assert.Equal(t, events.MatchStarted, readEvent(t, conn).Type)
}

func TestLocalPublisherReachesHubWithoutRedis(t *testing.T) {
	hub := NewHub(slog.Default(), nil)
	srv := serveHub(t, hub)
	conn := dial(t, srv, "m1", "alice")
	require.Eventually(t, func() bool { return hub.RoomSize("m1") == 1 }, time.Second, 5*time.Millisecond)

	pub := NewLocalPublisher(events.NewLogPublisher(slog.Default()), hub)
	require.NoError(t, pub.Publish(context.Background(), events.Event{Type: events.ProgressMerged, MatchID: "m1", UserID: "bob"}))

	assert.Equal(t, events.ProgressMerged, readEvent(t, conn).Type)
}
