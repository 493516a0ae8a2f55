package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// RawFrame is one websocket frame from the trade feed, stamped with
// receive time so downstream stages never consult the clock themselves.
type RawFrame struct {
	Data       []byte
	ReceivedAt time.Time
}

// subscribeMessage is sent once per connection to register interest in
// a token's trade stream.
type subscribeMessage struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys"`
}

// FeedClient maintains a websocket connection to the upstream trade feed
// and pushes raw frames into frameChan. It owns reconnection: a stale
// connection (no frame within staleAfter) or a read error triggers a
// reconnect with linear backoff, up to maxAttempts consecutive failures.
type FeedClient struct {
	url          string
	mint         string
	frameChan    chan<- RawFrame
	staleAfter   time.Duration
	maxAttempts  int
	retryBackoff time.Duration
	onReconnect  func()

	dialer *websocket.Dialer
}

// FeedConfig holds the tunables for the feed connection.
type FeedConfig struct {
	URL          string
	Mint         string
	StaleAfter   time.Duration // reconnect if no frame arrives within this window
	MaxAttempts  int           // consecutive failed dials before giving up
	RetryBackoff time.Duration // backoff unit, multiplied by attempt number
	OnReconnect  func()        // called before each reconnect attempt
}

func NewFeedClient(cfg FeedConfig, frameChan chan<- RawFrame) *FeedClient {
	return &FeedClient{
		url:          cfg.URL,
		mint:         cfg.Mint,
		frameChan:    frameChan,
		staleAfter:   cfg.StaleAfter,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
		onReconnect:  cfg.OnReconnect,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Run connects and pumps frames until ctx is cancelled or maxAttempts
// consecutive connection failures occur. A successfully received frame
// resets the failure counter.
func (fc *FeedClient) Run(ctx context.Context) error {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fc.runConnection(ctx, &attempts)
		if err == context.Canceled || err == context.DeadlineExceeded {
			return err
		}

		attempts++
		if attempts >= fc.maxAttempts {
			return fmt.Errorf("feed: giving up after %d consecutive failures: %w", attempts, err)
		}

		if fc.onReconnect != nil {
			fc.onReconnect()
		}
		backoff := time.Duration(attempts) * fc.retryBackoff
		log.Printf("WARN: feed connection lost (attempt %d/%d), reconnecting in %s: %v",
			attempts, fc.maxAttempts, backoff, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runConnection dials, subscribes, and pumps frames until the connection
// dies or goes stale. attempts is reset on the first received frame.
func (fc *FeedClient) runConnection(ctx context.Context, attempts *int) error {
	conn, _, err := fc.dialer.DialContext(ctx, fc.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", fc.url, err)
	}
	defer conn.Close()

	sub := subscribeMessage{Method: "subscribeTokenTrade", Keys: []string{fc.mint}}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Printf("INFO: feed connected, subscribed to token trades mint=%s", fc.mint)

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		// Stale-connection watchdog: the feed sends trades continuously
		// for an active token, so prolonged silence means a dead peer.
		conn.SetReadDeadline(time.Now().Add(fc.staleAfter))

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		*attempts = 0

		frame := RawFrame{Data: data, ReceivedAt: time.Now()}
		select {
		case fc.frameChan <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
