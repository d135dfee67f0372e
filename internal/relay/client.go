// Package relay implements the event channel to the room relay: a
// single persistent websocket carrying every protocol envelope, plus
// the typed dispatcher that fans deliveries out to the session.
package relay

import (
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Sqott47/cinemate/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	outgoingBuffer = 16
)

// Client manages the websocket connection to the room relay.
//
// Sends are at-most-once: an envelope handed to Send while the channel
// is not open, or while the write side is saturated, is dropped
// silently. Incoming envelopes are delivered in receipt order on the
// channel returned by Incoming, which closes when the connection dies.
type Client struct {
	logger    zerolog.Logger
	conn      *websocket.Conn
	serverURL string
	incoming  chan *protocol.Envelope
	outgoing  chan *protocol.Envelope
	done      chan struct{}
	open      atomic.Bool
	closeOnce sync.Once
}

// NewClient creates a signaling client for the given websocket URL.
// The connection id tags every log line so overlapping sessions can be
// told apart.
func NewClient(serverURL string, logger zerolog.Logger) *Client {
	return &Client{
		logger: logger.With().
			Str("component", "relay").
			Str("conn_id", uuid.NewString()).
			Logger(),
		serverURL: serverURL,
		incoming:  make(chan *protocol.Envelope, 1),
		outgoing:  make(chan *protocol.Envelope, outgoingBuffer),
		done:      make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the pumps.
func (c *Client) Connect() error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid relay URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect to relay: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.open.Store(true)

	go c.readPump()
	go c.writePump()

	c.logger.Debug().Str("url", u.String()).Msg("relay channel open")
	return nil
}

// readPump reads envelopes from the websocket in order and delivers
// them on the incoming channel.
func (c *Client) readPump() {
	defer func() {
		c.open.Store(false)
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}

		c.incoming <- &env
	}
}

// writePump writes envelopes to the websocket and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.open.Store(false)
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send queues an envelope for delivery. It never blocks and never
// fails loudly: envelopes sent while the channel is closed or the
// write buffer is full are dropped.
func (c *Client) Send(env *protocol.Envelope) {
	if !c.open.Load() {
		c.logger.Debug().Str("type", env.Type).Msg("dropping send, channel not open")
		return
	}

	select {
	case c.outgoing <- env:
	default:
		c.logger.Debug().Str("type", env.Type).Msg("dropping send, write buffer full")
	}
}

// IsOpen reports whether the channel currently accepts sends.
func (c *Client) IsOpen() bool {
	return c.open.Load()
}

// Incoming returns the ordered delivery channel. It is closed when the
// connection ends.
func (c *Client) Incoming() <-chan *protocol.Envelope {
	return c.incoming
}

// Close shuts the websocket down and releases the pumps.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
	})
}
