// Package gateway implements the websocket connection the dispatch loop
// drives. The gateway relays typed command frames to the chat network, so
// this client never speaks the network's wire format itself; it only keeps
// the socket healthy and the joined-channel view current.
package gateway

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quenchbot/floodgate/buffer"
	"github.com/quenchbot/floodgate/flood"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	readyWait    = 10 * time.Second
	maxFrameSize = 1 << 20
)

// Client is a flood.Conn over a websocket gateway. It also carries the
// joined-channel set the gateway reports, so the same value serves as the
// loop's flood.Membership.
type Client struct {
	url   string
	token string
	nick  string

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	nextID   atomic.Int64
	channels *channelSet
	log      *slog.Logger
}

// NewClient builds a client for the gateway at url. Nothing is dialed until
// Connect.
func NewClient(url, token, nick string) *Client {
	return &Client{
		url:      url,
		token:    token,
		nick:     nick,
		channels: newChannelSet(),
		log:      slog.Default(),
	}
}

// IsConnected reports whether the socket is up and the handshake completed.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect dials the gateway, performs the hello handshake and starts the
// read and ping loops. Calling it while connected is a no-op, and it can be
// called again after any failure.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	wsURL := normalizeURL(c.url)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	conn.SetReadLimit(maxFrameSize)

	// Introduce ourselves and wait for the gateway's ready before
	// reporting the connection usable.
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame{Type: frameHello, Token: c.token, Nick: c.nick}); err != nil {
		conn.Close()
		return fmt.Errorf("hello: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(readyWait))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			conn.Close()
			return fmt.Errorf("awaiting ready: %w", err)
		}
		if f.Type != frameEvent {
			continue
		}
		if f.Error != "" {
			conn.Close()
			return fmt.Errorf("gateway refused hello: %s", f.Error)
		}
		if f.Event == eventReady {
			break
		}
	}

	// A new connection starts with no joins; any view left over from a
	// previous connection is stale.
	c.channels.clear()

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(conn, done)
	go c.pingLoop(conn, done)

	c.log.Info("gateway connected", "url", wsURL, "nick", c.nick)
	return nil
}

// Close tears the connection down. The client can be reconnected afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Joined reports whether the gateway currently has us in target.
func (c *Client) Joined(target string) bool {
	return c.channels.joined(target)
}

func (c *Client) Join(channel, key string) error {
	if key == "" {
		return c.send(buffer.CmdJoin, channel)
	}
	return c.send(buffer.CmdJoin, channel, key)
}

func (c *Client) Mode(target string, modes ...string) error {
	return c.send(buffer.CmdMode, append([]string{target}, modes...)...)
}

func (c *Client) Privmsg(target, text string) error {
	return c.send(buffer.CmdPrivmsg, target, text)
}

func (c *Client) Notice(target, text string) error {
	return c.send(buffer.CmdNotice, target, text)
}

func (c *Client) Topic(channel, topic string) error {
	if topic == "" {
		return c.send(buffer.CmdTopic, channel)
	}
	return c.send(buffer.CmdTopic, channel, topic)
}

func (c *Client) Who(mask string) error {
	return c.send(buffer.CmdWho, mask)
}

func (c *Client) Whois(nick string) error {
	return c.send(buffer.CmdWhois, nick)
}

// send delivers one command frame, mapping every transport-down condition to
// flood.ErrNotConnected so the dispatch loop requeues instead of dropping.
func (c *Client) send(verb buffer.Command, args ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return flood.ErrNotConnected
	}
	f := frame{
		Type: frameCmd,
		ID:   fmt.Sprintf("fg-%d", c.nextID.Add(1)),
		Verb: string(verb),
		Args: args,
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(f); err != nil {
		// Closing the socket makes the read loop notice and clean up.
		c.conn.Close()
		c.connected = false
		return fmt.Errorf("%w: %v", flood.ErrNotConnected, err)
	}
	return nil
}

// readLoop consumes gateway events until the socket dies, keeping the
// joined-channel view current. On exit it marks the client disconnected and
// resets the membership view, since the gateway forgot our joins with the
// connection. A replacement connection may already be up by the time a dead
// read loop unwinds, so cleanup only touches shared state it still owns.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		current := c.conn == conn
		if current {
			c.connected = false
			c.conn = nil
		}
		c.mu.Unlock()
		close(done)
		if current {
			c.channels.clear()
			c.log.Info("gateway disconnected")
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("gateway read error", "err", err)
			}
			return
		}
		if f.Type != frameEvent {
			continue
		}
		switch f.Event {
		case eventJoined:
			c.channels.add(f.Channel)
			c.log.Info("joined channel", "channel", f.Channel)
		case eventParted:
			c.channels.remove(f.Channel)
			c.log.Info("parted channel", "channel", f.Channel)
		}
	}
}

// pingLoop keeps the connection alive; the pong handler in readLoop extends
// the read deadline in response.
func (c *Client) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// normalizeURL accepts http(s) and bare host forms and rewrites them to the
// websocket scheme.
func normalizeURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "ws://"), strings.HasPrefix(raw, "wss://"):
		return raw
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	}
	return "wss://" + raw
}
