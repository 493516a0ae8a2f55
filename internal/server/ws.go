package server

import (
	"BossRaid/internal/core"
	"BossRaid/internal/observability"
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	clientSendBuf  = 32
	maxInboundSize = 512
)

// Hub fans engine broadcast events out to websocket spectators. A slow
// client gets events dropped from its private buffer, never stalling
// the hub or other clients.
type Hub struct {
	upgrader   websocket.Upgrader
	register   chan *client
	unregister chan *client
	done       chan struct{} // closed when Run returns
	events     <-chan core.BroadcastEvent
	metrics    *observability.Metrics
	log        zerolog.Logger
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan core.BroadcastEvent
}

func NewHub(events <-chan core.BroadcastEvent, metrics *observability.Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		events:     events,
		metrics:    metrics,
		log:        logger,
	}
}

// Run owns the client set; all membership changes and fan-out go
// through this goroutine. On return it closes done so pumps and late
// upgrades fall through instead of blocking on register/unregister.
func (h *Hub) Run(ctx context.Context) error {
	clients := make(map[*client]struct{})
	defer func() {
		close(h.done)
		for c := range clients {
			close(c.send)
			c.conn.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case c := <-h.register:
			clients[c] = struct{}{}
			if h.metrics != nil {
				h.metrics.WSClients.Set(float64(len(clients)))
			}
			h.log.Debug().Str("client", c.id.String()).Int("clients", len(clients)).Msg("spectator connected")

		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
			}
			if h.metrics != nil {
				h.metrics.WSClients.Set(float64(len(clients)))
			}

		case evt, ok := <-h.events:
			if !ok {
				return nil
			}
			for c := range clients {
				select {
				case c.send <- evt:
				default:
					// Client buffer full: drop this event for this
					// client only. They resync over HTTP.
					if h.metrics != nil {
						h.metrics.BroadcastDrops.Inc()
					}
				}
			}
		}
	}
}

// ServeWS upgrades the connection and attaches it to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan core.BroadcastEvent, clientSendBuf),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; spectators are read-only. It exists
// to notice disconnects and answer pings.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
