// Package client is the consumer-side contract for the messaging
// gateway: connecting with an identity token, reconnecting with backoff,
// debouncing typing signals, and reconciling the unread badge against
// pushes. Portal frontends implement the same behavior; this package
// pins it down and gives the tests something to hold against.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/google/uuid"
	"github.com/opsline/intranet_chat/websocket"
)

// Backoff computes capped exponential reconnect delays with jitter so a
// restarting gateway is not hammered by every client at once.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // 0..1 fraction of the delay randomized
}

var DefaultBackoff = Backoff{
	Min:    500 * time.Millisecond,
	Max:    30 * time.Second,
	Factor: 2,
	Jitter: 0.2,
}

// Next returns the delay before reconnect attempt n (0-based).
func (b Backoff) Next(attempt int) time.Duration {
	d := float64(b.Min)
	for i := 0; i < attempt; i++ {
		d *= b.Factor
		if d >= float64(b.Max) {
			d = float64(b.Max)
			break
		}
	}
	if b.Jitter > 0 {
		d += d * b.Jitter * (rand.Float64()*2 - 1)
	}
	if d < float64(b.Min) {
		d = float64(b.Min)
	}
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	return time.Duration(d)
}

type inboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Session is one client's connection to the gateway. Handlers registered
// with On run on the read goroutine, in delivery order.
type Session struct {
	URL     string
	Token   string
	Backoff Backoff

	mu       sync.Mutex
	conn     *gws.Conn
	handlers map[string]func(json.RawMessage)
	rooms    map[string]struct{} // conversation rooms to rejoin after reconnect
	closed   bool
	done     chan struct{}
}

func NewSession(url, token string) *Session {
	return &Session{
		URL:      url,
		Token:    token,
		Backoff:  DefaultBackoff,
		handlers: make(map[string]func(json.RawMessage)),
		rooms:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// On registers a handler for a server event name.
func (s *Session) On(event string, fn func(json.RawMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = fn
}

// Dial connects, authenticates with the first frame, and starts the read
// loop. The personal room is joined server-side at auth; conversation
// rooms joined through JoinConversation are re-joined after every
// reconnect.
func (s *Session) Dial() error {
	conn, _, err := gws.DefaultDialer.Dial(s.URL, nil)
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(websocket.AuthFrame{Event: websocket.EventAuth, Token: s.Token}); err != nil {
		conn.Close()
		return err
	}

	var ready inboundEvent
	if err := conn.ReadJSON(&ready); err != nil {
		conn.Close()
		return err
	}
	if ready.Event != websocket.EventReady {
		conn.Close()
		return fmt.Errorf("gateway rejected connection: %s", string(ready.Data))
	}

	s.mu.Lock()
	s.conn = conn
	rooms := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.mu.Unlock()

	for _, conversationID := range rooms {
		_ = s.send(websocket.ClientFrame{Event: websocket.EventJoinConversation, ConversationID: conversationID})
	}

	go s.readLoop(conn)
	return nil
}

// Close stops the session and disables reconnection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// JoinConversation asks for conversation-room membership and remembers it
// for reconnects.
func (s *Session) JoinConversation(conversationID string) error {
	s.mu.Lock()
	s.rooms[conversationID] = struct{}{}
	s.mu.Unlock()
	return s.send(websocket.ClientFrame{Event: websocket.EventJoinConversation, ConversationID: conversationID})
}

func (s *Session) LeaveConversation(conversationID string) error {
	s.mu.Lock()
	delete(s.rooms, conversationID)
	s.mu.Unlock()
	return s.send(websocket.ClientFrame{Event: websocket.EventLeaveConversation, ConversationID: conversationID})
}

// SendMessage attaches a fresh client_msg_id so a retry after a dropped
// acknowledgment cannot create a duplicate server-side.
func (s *Session) SendMessage(conversationID, content string, attachments []string) (string, error) {
	clientMsgID := uuid.NewString()
	err := s.send(websocket.ClientFrame{
		Event:          websocket.EventSendMessage,
		ConversationID: conversationID,
		Content:        content,
		Attachments:    attachments,
		ClientMsgID:    clientMsgID,
	})
	return clientMsgID, err
}

func (s *Session) Typing(conversationID, displayName string) error {
	return s.send(websocket.ClientFrame{Event: websocket.EventTyping, ConversationID: conversationID, DisplayName: displayName})
}

func (s *Session) StopTyping(conversationID string) error {
	return s.send(websocket.ClientFrame{Event: websocket.EventStopTyping, ConversationID: conversationID})
}

func (s *Session) send(frame websocket.ClientFrame) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("session is not connected")
	}
	return conn.WriteJSON(frame)
}

func (s *Session) readLoop(conn *gws.Conn) {
	for {
		var evt inboundEvent
		if err := conn.ReadJSON(&evt); err != nil {
			conn.Close()
			s.reconnect()
			return
		}
		s.mu.Lock()
		fn := s.handlers[evt.Event]
		s.mu.Unlock()
		if fn != nil {
			fn(evt.Data)
		}
	}
}

func (s *Session) reconnect() {
	for attempt := 0; ; attempt++ {
		select {
		case <-s.done:
			return
		case <-time.After(s.Backoff.Next(attempt)):
		}
		if err := s.Dial(); err != nil {
			log.Printf("Reconnect attempt %d failed: %v", attempt+1, err)
			continue
		}
		return
	}
}
