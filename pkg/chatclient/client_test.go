package chatclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gemini-chat-go/internal/handler"
	"gemini-chat-go/internal/model"
	"gemini-chat-go/internal/realtime"
	"gemini-chat-go/internal/repository"
	"gemini-chat-go/internal/service"
	"gemini-chat-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoGateway struct{}

func (echoGateway) Generate(_ context.Context, prompt string, vision bool) (string, error) {
	if vision {
		return "vision: " + prompt, nil
	}
	return "echo: " + prompt, nil
}

func newServer(t *testing.T) (*httptest.Server, *token.JWTManager, *realtime.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())

	hub := realtime.NewHub(16)
	jwtManager := token.NewJWTManager("client-secret", "", 1)
	messages := service.NewMessageService(repository.NewMemoryMessageRepository(), nil, service.MessageSinkFunc(hub.Publish))
	router := handler.NewRouter(handler.Dependencies{
		Root:       ctx,
		Messages:   messages,
		Chat:       service.NewChatService(messages, echoGateway{}),
		Identities: service.NewIdentityService(jwtManager, repository.NewMemoryTokenRepository(), service.IdentityLinks{LoginURL: "/login"}),
		Broker:     hub,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, jwtManager, hub
}

func TestClientRoundTrip(t *testing.T) {
	srv, jwtManager, _ := newServer(t)
	tok, err := jwtManager.GenerateToken(model.Identity{Subject: "u1", Name: "Ada"})
	require.NoError(t, err)
	c := New(srv.URL, WithToken(tok))
	ctx := context.Background()

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.True(t, me.Authenticated)
	assert.Equal(t, "u1", me.User.Subject)

	res, err := c.ChatWithGemini(ctx, ChatRequest{Message: "cat", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, &ChatResult{Success: true, Response: "echo: cat"}, res)

	added, err := c.AddMessage(ctx, model.NewMessage{UserID: "u1", Role: model.RoleUser, Content: "Category theory"})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)

	all, err := c.GetMessages(ctx, "u1", 50, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "cat", all[0].Content)
	assert.Equal(t, "echo: cat", all[1].Content)
	assert.Equal(t, *added, all[2])

	found, err := c.SearchMessages(ctx, "u1", "CAT", 20)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, added.ID, found[0].ID)
}

func TestClientErrors(t *testing.T) {
	srv, jwtManager, _ := newServer(t)
	tok, err := jwtManager.GenerateToken(model.Identity{Subject: "u1"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = New(srv.URL, WithToken(tok)).GetMessages(ctx, "u2", 10, 0)
	assert.True(t, IsStatus(err, http.StatusForbidden), "got %v", err)

	_, err = New(srv.URL).GetMessages(ctx, "u1", 0, 0)
	assert.True(t, IsStatus(err, http.StatusBadRequest), "got %v", err)

	_, err = New(srv.URL).Subscribe(ctx)
	assert.Error(t, err)

	_, err = New(srv.URL, WithToken("bogus")).Subscribe(ctx)
	assert.True(t, IsStatus(err, http.StatusUnauthorized), "got %v", err)

	c := New(srv.URL, WithToken(tok))
	require.NoError(t, c.Logout(ctx))
	_, err = c.Me(ctx)
	assert.True(t, IsStatus(err, http.StatusUnauthorized), "got %v", err)
}

func TestSubscribeReceivesAndReleases(t *testing.T) {
	srv, jwtManager, hub := newServer(t)
	tok, err := jwtManager.GenerateToken(model.Identity{Subject: "u1"})
	require.NoError(t, err)
	c := New(srv.URL, WithToken(tok))

	ctx, cancel := context.WithCancel(context.Background())
	events, err := c.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers("u1"))

	_, err = c.AddMessage(context.Background(), model.NewMessage{UserID: "u1", Role: model.RoleAssistant, Content: "pushed"})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, "pushed", ev.New.Content)
		assert.Equal(t, model.RoleAssistant, ev.New.Role)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, open := <-events:
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return hub.Subscribers("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
