package server

import (
	"BossRaid/internal/core"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestHub_BroadcastReachesClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	events := make(chan core.BroadcastEvent, 8)
	hub := NewHub(events, nil, zerolog.Nop())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// Registration races the broadcast; retry until the hub has us.
	deadline := time.Now().Add(2 * time.Second)
	conn.SetReadDeadline(deadline)
	got := make(chan struct{})
	go func() {
		var evt core.BroadcastEvent
		if err := conn.ReadJSON(&evt); err == nil && evt.Kind == core.BroadcastTrade {
			close(got)
		}
	}()
	for {
		select {
		case events <- core.BroadcastEvent{Kind: core.BroadcastTrade}:
		default:
		}
		select {
		case <-got:
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("broadcast never reached the websocket client")
		}
	}
}

func TestHub_StoppedHubDoesNotStrandConnections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan core.BroadcastEvent)
	hub := NewHub(events, nil, zerolog.Nop())

	runDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(runDone)
	}()
	cancel()
	<-runDone

	// The HTTP server may still accept /ws after the hub stopped; the
	// upgrade must close the connection instead of blocking on register.
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return // rejected outright is fine too
	}
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection stayed open after hub shutdown, want close")
	}
}
