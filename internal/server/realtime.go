package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/larrybwosi/workspace-sub003/internal/fanout"
	gatewaydomain "github.com/larrybwosi/workspace-sub003/internal/gateway/domain"
	"github.com/larrybwosi/workspace-sub003/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	defaultHeartbeat = 15 * time.Second
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 4096
)

type realtimeAction struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

type realtimeFrame struct {
	Type  string        `json:"type"`
	Topic string        `json:"topic,omitempty"`
	Error string        `json:"error,omitempty"`
	Event *fanout.Event `json:"event,omitempty"`
}

// authorizeTopic checks that principal may observe topic. User topics are
// private to their owner.
func (s *Server) authorizeTopic(ctx context.Context, principal gatewaydomain.Principal, topic string) error {
	kind, id, err := fanout.ParseTopic(topic)
	if err != nil {
		return err
	}

	switch kind {
	case fanout.TopicChannel:
		_, err = s.gate.RequireChannel(ctx, principal, id)
		return err
	case fanout.TopicThread:
		if s.messages == nil {
			return ErrServiceUnavailable
		}
		_, err = s.messages.GetThread(ctx, principal, id)
		return err
	case fanout.TopicUser:
		if !principal.ActsAsUser() || principal.AuthorID() != id {
			return ErrForbidden
		}
		return nil
	case fanout.TopicWorkspace:
		return s.gate.RequireWorkspace(ctx, principal, id)
	}
	return fanout.ErrInvalidTopic
}

// StreamEvents serves one topic as server-sent events.
func (s *Server) StreamEvents(c *gin.Context) {
	if s.hub == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	topic := strings.TrimSpace(c.Query("topic"))
	if topic == "" {
		AbortWithError(c, newValidationError("topic", "invalid_topic", "topic is required"))
		return
	}
	if err := s.authorizeTopic(c.Request.Context(), principal, topic); err != nil {
		AbortWithError(c, err)
		return
	}

	subscription, backlog, err := s.hub.Subscribe(topic)
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer subscription.Close()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}
	for _, event := range backlog {
		if err := writeSSEEvent(writer, event); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(s.heartbeat())
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscription.Events():
			if err := writeSSEEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w io.Writer, event fanout.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data)
	return err
}

// ServeWebsocket upgrades the connection and lets the client manage its own
// topic subscriptions with subscribe and unsubscribe actions.
func (s *Server) ServeWebsocket(c *gin.Context) {
	if s.hub == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		c.Abort()
		return
	}

	client := &wsClient{
		server:    s,
		conn:      conn,
		principal: principal,
		send:      make(chan realtimeFrame, s.subscriberBuffer()),
		subs:      make(map[string]*wsSubscription),
		done:      make(chan struct{}),
		log:       logger.FromContext(c.Request.Context()),
	}
	go client.writeLoop()
	client.readLoop(context.WithoutCancel(c.Request.Context()))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	allowed := s.cfg.Realtime.AllowedOrigins
	if len(allowed) == 0 {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
	for _, candidate := range allowed {
		if candidate == "*" || strings.EqualFold(strings.TrimSpace(candidate), origin) {
			return true
		}
	}
	return false
}

func (s *Server) heartbeat() time.Duration {
	if s.cfg.Realtime.Heartbeat > 0 {
		return s.cfg.Realtime.Heartbeat
	}
	return defaultHeartbeat
}

func (s *Server) subscriberBuffer() int {
	if s.cfg.Realtime.SubscriberBuffer > 0 {
		return s.cfg.Realtime.SubscriberBuffer
	}
	return fanout.DefaultSubscriberBuffer
}

type wsClient struct {
	server    *Server
	conn      *websocket.Conn
	principal gatewaydomain.Principal
	send      chan realtimeFrame
	log       *zap.Logger

	mu   sync.Mutex
	subs map[string]*wsSubscription

	done      chan struct{}
	closeOnce sync.Once
}

type wsSubscription struct {
	sub  *fanout.Subscription
	stop chan struct{}
}

func (c *wsClient) readLoop(ctx context.Context) {
	defer c.shutdown()

	heartbeat := c.server.heartbeat()
	c.conn.SetReadLimit(wsMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * heartbeat))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * heartbeat))
	})

	for {
		var action realtimeAction
		if err := c.conn.ReadJSON(&action); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		topic := strings.TrimSpace(action.Topic)
		switch strings.ToLower(strings.TrimSpace(action.Action)) {
		case "subscribe":
			c.subscribe(ctx, topic)
		case "unsubscribe":
			c.unsubscribe(topic)
			c.reply(realtimeFrame{Type: "unsubscribed", Topic: topic})
		default:
			c.reply(realtimeFrame{Type: "error", Topic: topic, Error: "invalid_action"})
		}
	}
}

func (c *wsClient) subscribe(ctx context.Context, topic string) {
	if err := c.server.authorizeTopic(ctx, c.principal, topic); err != nil {
		_, payload := mapError(err)
		code := payload.Code
		c.reply(realtimeFrame{Type: "error", Topic: topic, Error: code})
		return
	}

	c.mu.Lock()
	if _, exists := c.subs[topic]; exists {
		c.mu.Unlock()
		c.reply(realtimeFrame{Type: "subscribed", Topic: topic})
		return
	}
	sub, backlog, err := c.server.hub.Subscribe(topic)
	if err != nil {
		c.mu.Unlock()
		c.reply(realtimeFrame{Type: "error", Topic: topic, Error: "invalid_topic"})
		return
	}
	entry := &wsSubscription{sub: sub, stop: make(chan struct{})}
	c.subs[topic] = entry
	c.mu.Unlock()

	c.reply(realtimeFrame{Type: "subscribed", Topic: topic})
	for i := range backlog {
		c.reply(realtimeFrame{Type: "event", Topic: topic, Event: &backlog[i]})
	}
	go c.forward(entry)
}

func (c *wsClient) forward(entry *wsSubscription) {
	for {
		select {
		case <-entry.stop:
			return
		case <-c.done:
			return
		case event := <-entry.sub.Events():
			select {
			case c.send <- realtimeFrame{Type: "event", Topic: event.Topic, Event: &event}:
			case <-entry.stop:
				return
			case <-c.done:
				return
			}
		}
	}
}

func (c *wsClient) unsubscribe(topic string) {
	c.mu.Lock()
	entry, ok := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()
	if ok {
		close(entry.stop)
		entry.sub.Close()
	}
}

func (c *wsClient) reply(frame realtimeFrame) {
	select {
	case c.send <- frame:
	case <-c.done:
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(c.server.heartbeat())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

func (c *wsClient) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		subs := c.subs
		c.subs = make(map[string]*wsSubscription)
		c.mu.Unlock()
		for _, entry := range subs {
			close(entry.stop)
			entry.sub.Close()
		}
	})
}
