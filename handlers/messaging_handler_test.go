package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/opsline/intranet_chat/handlers"
	"github.com/opsline/intranet_chat/models"
	"github.com/opsline/intranet_chat/presence"
	"github.com/opsline/intranet_chat/routes"
	"github.com/opsline/intranet_chat/services"
	"github.com/opsline/intranet_chat/websocket"
)

const testSecret = "test-secret"

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	chat     *services.ChatService
	registry presence.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.UserMute{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.MessageReaction{},
		&models.MessageRead{},
	))

	registry := presence.NewMemoryRegistry()
	chat := services.NewChatService(db)
	hub := websocket.NewHub(registry)
	handler := handlers.NewMessagingHandler(chat, hub, registry)

	app := fiber.New()
	routes.MessagingRoutes(app, handler)

	return &testEnv{app: app, db: db, chat: chat, registry: registry}
}

func (e *testEnv) createUser(t *testing.T, username string) models.User {
	t.Helper()
	user := models.User{Username: username, Email: username + "@portal.local", Password: "x", IsActive: true}
	require.NoError(t, e.db.Create(&user).Error)
	return user
}

func tokenFor(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestRoutesRequireAuthentication(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/api/v1/conversations", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	bogus, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": uuid.NewString()}).
		SignedString([]byte("wrong-secret"))
	require.NoError(t, err)
	resp = env.request(t, http.MethodGet, "/api/v1/conversations", nil, bogus)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetChatUsersWithOnlineFlags(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	env.createUser(t, "carol")

	require.NoError(t, env.registry.RegisterConnection(context.Background(), "conn-1", bob.ID))

	resp := env.request(t, http.MethodGet, "/api/v1/chat/users", nil, tokenFor(t, alice.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	items := body["items"].([]interface{})
	require.Len(t, items, 2, "the caller is not in their own list")

	online := map[string]bool{}
	for _, raw := range items {
		item := raw.(map[string]interface{})
		online[item["username"].(string)] = item["online"].(bool)
	}
	assert.True(t, online["bob"])
	assert.False(t, online["carol"])
}

func TestCreateOrGetConversationEndpoint(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	token := tokenFor(t, alice.ID)

	resp := env.request(t, http.MethodPost, "/api/v1/conversations",
		fiber.Map{"recipient_id": bob.ID.String()}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decodeBody(t, resp)

	// Idempotent: the second call returns the same conversation, not a
	// duplicate.
	resp = env.request(t, http.MethodPost, "/api/v1/conversations",
		fiber.Map{"recipient_id": bob.ID.String()}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decodeBody(t, resp)
	assert.Equal(t, first["id"], second["id"])

	resp = env.request(t, http.MethodPost, "/api/v1/conversations",
		fiber.Map{"recipient_id": alice.ID.String()}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/v1/conversations", fiber.Map{}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/v1/conversations",
		fiber.Map{"recipient_id": uuid.NewString()}, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConversationListEnvelope(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	ctx := context.Background()

	conversation, _, err := env.chat.GetOrCreateConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = env.chat.SendMessage(ctx, services.SendMessageInput{
		ConversationID: conversation.ID, SenderID: bob.ID, Content: "hey",
	})
	require.NoError(t, err)

	resp := env.request(t, http.MethodGet, "/api/v1/conversations?page=1&page_size=10", nil, tokenFor(t, alice.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.EqualValues(t, 1, body["total"])
	assert.EqualValues(t, 1, body["page"])
	assert.EqualValues(t, 10, body["page_size"])
	assert.Equal(t, false, body["has_more"])

	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.EqualValues(t, 1, item["unread_count"])
	require.NotNil(t, item["last_message"])
	preview := item["last_message"].(map[string]interface{})
	assert.Equal(t, "hey", preview["content"])
}

func TestGetMessagesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")
	ctx := context.Background()

	conversation, _, err := env.chat.GetOrCreateConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := env.chat.SendMessage(ctx, services.SendMessageInput{
			ConversationID: conversation.ID, SenderID: alice.ID, Content: fmt.Sprintf("m%d", i),
		})
		require.NoError(t, err)
	}

	base := fmt.Sprintf("/api/v1/conversations/%s/messages", conversation.ID)

	resp := env.request(t, http.MethodGet, base+"?limit=2", nil, tokenFor(t, bob.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 2)
	require.NotNil(t, body["next_cursor"])

	cursor := body["next_cursor"].(string)
	resp = env.request(t, http.MethodGet, base+"?limit=2&cursor="+cursor, nil, tokenFor(t, bob.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	require.Len(t, body["messages"].([]interface{}), 1)
	assert.Nil(t, body["next_cursor"])

	// Non-participants are rejected, and malformed ids never reach the
	// store.
	resp = env.request(t, http.MethodGet, base, nil, tokenFor(t, carol.ID))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/api/v1/conversations/not-a-uuid/messages", nil, tokenFor(t, bob.ID))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, http.MethodGet, base+"?cursor=not-a-uuid", nil, tokenFor(t, bob.ID))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestToggleMuteEndpoint(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	token := tokenFor(t, alice.ID)

	path := fmt.Sprintf("/api/v1/chat/users/%s/mute", bob.ID)

	resp := env.request(t, http.MethodPost, path, nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["muted"])

	resp = env.request(t, http.MethodPost, path, nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, decodeBody(t, resp)["muted"])
}

func TestMessageModerationEndpoints(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	ctx := context.Background()

	conversation, _, err := env.chat.GetOrCreateConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	message, err := env.chat.SendMessage(ctx, services.SendMessageInput{
		ConversationID: conversation.ID, SenderID: alice.ID, Content: "oops",
	})
	require.NoError(t, err)

	reactPath := fmt.Sprintf("/api/v1/messages/%s/reactions", message.ID)
	resp := env.request(t, http.MethodPost, reactPath, fiber.Map{"emoji": "like"}, tokenFor(t, bob.ID))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.request(t, http.MethodDelete, reactPath+"/like", nil, tokenFor(t, bob.ID))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	deletePath := fmt.Sprintf("/api/v1/messages/%s", message.ID)
	resp = env.request(t, http.MethodDelete, deletePath, nil, tokenFor(t, bob.ID))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodDelete, deletePath, nil, tokenFor(t, alice.ID))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
