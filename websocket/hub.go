package websocket

import (
	"context"
	"log"
	"sync"
	"time"

	ws "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/opsline/intranet_chat/presence"
)

// Conn is the slice of the websocket connection the hub needs. The
// gofiber contrib connection satisfies it; tests substitute a fake.
type Conn interface {
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Client is one live authenticated connection. A user with several
// devices has several clients.
type Client struct {
	ID     string
	UserID uuid.UUID
	Conn   Conn

	// writeMu serializes writes; broadcasts and the ping sweep touch the
	// same connection from different goroutines.
	writeMu sync.Mutex
}

func NewClient(userID uuid.UUID, conn Conn) *Client {
	return &Client{ID: uuid.NewString(), UserID: userID, Conn: conn}
}

func (c *Client) Send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}

func (c *Client) SendEvent(event string, data interface{}) error {
	return c.Send(ServerEvent{Event: event, Data: data})
}

func (c *Client) SendError(code, message string) {
	_ = c.SendEvent(EventError, ErrorData{Code: code, Message: message})
}

func (c *Client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteControl(ws.PingMessage, nil, time.Now().Add(5*time.Second))
}

// UserRoom is the personal room every authenticated connection joins; it
// receives conversation-level notices regardless of which conversation
// rooms are open.
func UserRoom(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// ConversationRoom scopes broadcasts to one conversation.
func ConversationRoom(conversationID uuid.UUID) string {
	return "conv:" + conversationID.String()
}

// Hub owns every live connection and its room membership, plus the
// presence registry. It is constructed once in main and injected into the
// connection handler; nothing reaches it through package globals.
type Hub struct {
	presence presence.Registry

	mu      sync.RWMutex
	clients map[string]*Client            // conn id -> client
	rooms   map[string]map[string]*Client // room -> conn id -> client
}

func NewHub(registry presence.Registry) *Hub {
	return &Hub{
		presence: registry,
		clients:  make(map[string]*Client),
		rooms:    make(map[string]map[string]*Client),
	}
}

// Register adds the connection and marks its user online.
func (h *Hub) Register(ctx context.Context, client *Client) error {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	if err := h.presence.RegisterConnection(ctx, client.ID, client.UserID); err != nil {
		log.Printf("Failed to register presence for connection %s: %v", client.ID, err)
		return err
	}
	return nil
}

// Unregister drops the connection from every room and from presence.
// Room membership is connection-scoped, so disconnect cleanup needs no
// per-room bookkeeping from the caller.
func (h *Hub) Unregister(ctx context.Context, client *Client) {
	h.mu.Lock()
	delete(h.clients, client.ID)
	for room, members := range h.rooms {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()

	if err := h.presence.UnregisterConnection(ctx, client.ID); err != nil {
		log.Printf("Failed to unregister presence for connection %s: %v", client.ID, err)
	}
}

// JoinRoom is idempotent; joining a room twice is a no-op.
func (h *Hub) JoinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[client.ID] = client
}

func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// InRoom reports whether the connection has joined the room.
func (h *Hub) InRoom(client *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[room]
	if !ok {
		return false
	}
	_, ok = members[client.ID]
	return ok
}

// BroadcastToRoom writes the event to every connection in the room.
// Connections whose user matches excludeUser are skipped (a typing user
// does not need their own indicator echoed back). Write failures drop the
// dead connection; the peer observes any gap on its next history fetch.
func (h *Hub) BroadcastToRoom(room, event string, data interface{}, excludeUser *uuid.UUID) {
	h.mu.RLock()
	members, ok := h.rooms[room]
	if !ok {
		h.mu.RUnlock()
		return
	}
	recipients := make([]*Client, 0, len(members))
	for _, client := range members {
		if excludeUser != nil && client.UserID == *excludeUser {
			continue
		}
		recipients = append(recipients, client)
	}
	h.mu.RUnlock()

	for _, client := range recipients {
		if err := client.SendEvent(event, data); err != nil {
			log.Printf("Error sending %s to connection %s: %v", event, client.ID, err)
			h.drop(client)
		}
	}
}

// PingAll sends a ws ping to every connection and prunes the ones whose
// transport is gone. Driven by the cron sweep in main.
func (h *Hub) PingAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.ping(); err != nil {
			log.Printf("Pruning dead connection %s: %v", client.ID, err)
			h.drop(client)
		}
	}
}

// ConnectionCount reports the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) drop(client *Client) {
	_ = client.Conn.Close()
	h.Unregister(context.Background(), client)
}
