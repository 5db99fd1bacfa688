// Package realtime subscribes to Supabase realtime postgres changes over the
// Phoenix websocket protocol.
package realtime

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kjannette/cryptovest-backend/internal/logging"
	"github.com/tidwall/gjson"
)

var log = logging.For("realtime")

// Handler receives changes for one table. Handlers run on the reader
// goroutine, in arrival order, and must not block for long.
type Handler func(Change)

type Options struct {
	Schema            string        // default "public"
	HeartbeatInterval time.Duration // default 30s
	ReconnectDelay    time.Duration // first backoff step, default 1s
	MaxReconnectDelay time.Duration // default 30s
	// OnReconnect runs after every rejoin except the first, before any
	// change from the new connection is dispatched. Changes made while
	// disconnected are never replayed, so callers refetch here.
	OnReconnect func()
}

type Client struct {
	url  string
	opts Options

	mu       sync.RWMutex
	handlers map[string][]Handler

	writeMu sync.Mutex
	conn    *websocket.Conn
	ref     int

	connected chan struct{}
	once      sync.Once
	joins     int
}

func NewClient(supabaseURL, apiKey string, opts Options) *Client {
	if opts.Schema == "" {
		opts.Schema = "public"
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	if opts.MaxReconnectDelay <= 0 {
		opts.MaxReconnectDelay = 30 * time.Second
	}

	wsURL := strings.TrimRight(supabaseURL, "/")
	switch {
	case strings.HasPrefix(wsURL, "https"):
		wsURL = "wss" + wsURL[5:]
	case strings.HasPrefix(wsURL, "http"):
		wsURL = "ws" + wsURL[4:]
	}
	wsURL += "/realtime/v1/websocket?apikey=" + url.QueryEscape(apiKey) + "&vsn=1.0.0"

	return &Client{
		url:       wsURL,
		opts:      opts,
		handlers:  make(map[string][]Handler),
		connected: make(chan struct{}),
	}
}

// On registers h for changes on table. Register before Run; tables added
// later are joined on the next reconnect.
func (c *Client) On(table string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[table] = append(c.handlers[table], h)
}

// Connected is closed once the first connection has joined its channels.
func (c *Client) Connected() <-chan struct{} {
	return c.connected
}

// Run keeps a connection open until ctx is cancelled, reconnecting with
// exponential backoff.
func (c *Client) Run(ctx context.Context) error {
	delay := c.opts.ReconnectDelay
	for {
		start := time.Now()
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(start) > c.opts.MaxReconnectDelay {
			delay = c.opts.ReconnectDelay
		}
		log.WithError(err).Warnf("connection lost, reconnecting in %s", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.opts.MaxReconnectDelay {
			delay = c.opts.MaxReconnectDelay
		}
	}
}

// session runs one connection: dial, join, heartbeat, read until error.
func (c *Client) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	defer func() {
		c.writeMu.Lock()
		c.conn = nil
		c.writeMu.Unlock()
		conn.Close()
	}()

	if err := c.joinAll(); err != nil {
		return err
	}
	c.once.Do(func() { close(c.connected) })
	c.joins++
	if c.joins > 1 {
		log.Info("reconnected and subscribed")
		if c.opts.OnReconnect != nil {
			c.opts.OnReconnect()
		}
	} else {
		log.Info("connected and subscribed")
	}

	done := make(chan struct{})
	defer close(done)
	go c.heartbeat(done)
	go func() {
		select {
		case <-ctx.Done():
			c.writeMu.Lock()
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.writeMu.Unlock()
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.dispatch(frame)
	}
}

func (c *Client) joinAll() error {
	c.mu.RLock()
	tables := make([]string, 0, len(c.handlers))
	for t := range c.handlers {
		tables = append(tables, t)
	}
	c.mu.RUnlock()

	for _, table := range tables {
		topic := "realtime:" + c.opts.Schema + ":" + table
		payload := map[string]any{
			"config": map[string]any{
				"postgres_changes": []map[string]string{
					{"event": "*", "schema": c.opts.Schema, "table": table},
				},
			},
		}
		if err := c.send(topic, "phx_join", payload, true); err != nil {
			return fmt.Errorf("join %s: %w", topic, err)
		}
	}
	return nil
}

func (c *Client) heartbeat(done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.send("phoenix", "heartbeat", map[string]any{}, false); err != nil {
				log.WithError(err).Debug("heartbeat failed")
				return
			}
		}
	}
}

func (c *Client) send(topic, event string, payload any, withJoinRef bool) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.ref++
	ref := strconv.Itoa(c.ref)
	msg := map[string]any{
		"topic":   topic,
		"event":   event,
		"payload": payload,
		"ref":     ref,
	}
	if withJoinRef {
		msg["join_ref"] = ref
	}
	return c.conn.WriteJSON(msg)
}

func (c *Client) dispatch(frame []byte) {
	event := gjson.GetBytes(frame, "event").String()
	switch event {
	case "phx_reply":
		if status := gjson.GetBytes(frame, "payload.status").String(); status != "ok" {
			log.WithField("topic", gjson.GetBytes(frame, "topic").String()).
				Warnf("server replied %s: %s", status, gjson.GetBytes(frame, "payload.response").Raw)
		}
		return
	case "phx_error", "phx_close":
		log.WithField("topic", gjson.GetBytes(frame, "topic").String()).Warnf("channel %s", event)
		return
	}

	ch, ok := parseChange(frame)
	if !ok {
		return
	}

	c.mu.RLock()
	handlers := c.handlers[ch.Table]
	c.mu.RUnlock()
	for _, h := range handlers {
		h(ch)
	}
}
