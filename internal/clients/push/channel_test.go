package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsURL converts an httptest server URL to a ws:// URL.
func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestChannel_ReceivesEnvelopes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"traffic_update","data":{"lane_1":{"total":4}}}`))
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"active_users","data":{"count":3}}`))

		// Keep the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := NewChannel(wsURL(server), time.Second, zap.NewNop())
	go channel.Run(ctx)

	var got []Envelope
	timeout := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case env := <-channel.Messages():
			got = append(got, env)
		case <-timeout:
			t.Fatal("timed out waiting for push messages")
		}
	}

	assert.Equal(t, TypeTrafficUpdate, got[0].Type)
	assert.Equal(t, TypeActiveUsers, got[1].Type)
	assert.JSONEq(t, `{"count":3}`, string(got[1].Data))
}

func TestChannel_SkipsMalformedMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"collective_update","data":{}}`))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := NewChannel(wsURL(server), time.Second, zap.NewNop())
	go channel.Run(ctx)

	select {
	case env := <-channel.Messages():
		assert.Equal(t, TypeCollectiveUpdate, env.Type, "Malformed message skipped, next one delivered")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for push message")
	}
}

func TestChannel_ReconnectsAfterDisconnect(t *testing.T) {
	connects := make(chan struct{}, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connects <- struct{}{}
		// Drop the connection immediately to force a reconnect
		conn.Close()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := NewChannel(wsURL(server), 50*time.Millisecond, zap.NewNop())
	go channel.Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-connects:
		case <-time.After(3 * time.Second):
			t.Fatalf("expected connection attempt %d", i+1)
		}
	}
}

func TestChannel_StopsOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	channel := NewChannel(wsURL(server), 50*time.Millisecond, zap.NewNop())

	done := make(chan struct{})
	go func() {
		channel.Run(ctx)
		close(done)
	}()

	// Let it connect, then cancel
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// Message stream is closed after Run returns
	_, open := <-channel.Messages()
	assert.False(t, open)
}
