package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/collabrooms/internal/protocol"
	"github.com/manpreetbhatti/collabrooms/internal/ratelimit"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
	sendBuffer     = 512

	// violations after which a flooding client is cut off
	maxRateViolations = 1000
)

// Dispatcher receives decoded events and disconnects
type Dispatcher interface {
	Submit(ctx context.Context, connID string, in protocol.Inbound) error
	Disconnect(ctx context.Context, connID string) error
}

type Options struct {
	MessagesPerSecond float64
	MessageBurst      int
	// Allowed Origin headers; empty or "*" allows any
	AllowedOrigins []string
}

// Server upgrades HTTP requests to room connections
type Server struct {
	ctx        context.Context
	hub        *Hub
	dispatcher Dispatcher
	opts       Options
	upgrader   websocket.Upgrader
	log        zerolog.Logger
}

// NewServer builds the /ws handler. ctx bounds the lifetime of every
// connection's event submissions.
func NewServer(ctx context.Context, hub *Hub, dispatcher Dispatcher, opts Options) *Server {
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = 100
	}
	if opts.MessageBurst <= 0 {
		opts.MessageBurst = 200
	}
	s := &Server{
		ctx:        ctx,
		hub:        hub,
		dispatcher: dispatcher,
		opts:       opts,
		log:        hub.log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

type Client struct {
	id         string
	hub        *Hub
	dispatcher Dispatcher
	conn       *websocket.Conn
	send       chan []byte
	limiter    *ratelimit.Limiter
	log        zerolog.Logger
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	client := &Client{
		id:         id,
		hub:        s.hub,
		dispatcher: s.dispatcher,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		limiter:    ratelimit.NewLimiter(s.opts.MessagesPerSecond, s.opts.MessageBurst),
		log:        s.log.With().Str("conn", id).Logger(),
	}

	s.hub.register(client)

	go client.writePump()
	go client.readPump(s.ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		if err := c.dispatcher.Disconnect(context.Background(), c.id); err != nil {
			c.log.Debug().Err(err).Msg("disconnect not delivered")
		}
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		if !c.limiter.Allow() {
			violations := c.limiter.Violations()
			if violations%100 == 1 {
				c.log.Warn().Int("violations", violations).Msg("rate limit exceeded")
			}
			if violations > maxRateViolations {
				c.log.Warn().Msg("disconnecting client for excessive rate limit violations")
				return
			}
			continue
		}

		in, err := protocol.Decode(message)
		if err != nil {
			c.log.Debug().Err(err).Msg("invalid frame")
			c.hub.Deliver(protocol.Error(err.Error()), c.id)
			continue
		}

		if err := c.dispatcher.Submit(ctx, c.id, in); err != nil {
			c.log.Debug().Err(err).Msg("coordinator unavailable")
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
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
