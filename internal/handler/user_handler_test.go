package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"farm-advisor-go/internal/middleware"
	"farm-advisor-go/internal/model"
	"farm-advisor-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUserService struct {
	profile     *model.User
	registerErr error
	registered  int
	loggedOut   string
	update      service.ProfileUpdate
}

func (s *stubUserService) Register(input service.RegisterInput) (*model.User, error) {
	s.registered++
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &model.User{ID: 1, Email: input.Email, PrimaryCrop: input.PrimaryCrop}, nil
}

func (s *stubUserService) Login(email, password string) (string, string, error) {
	if password != "secret1" {
		return "", "", service.ErrInvalidCredentials
	}
	return "access", "refresh", nil
}

func (s *stubUserService) GetProfile(email string) (*model.User, error) {
	if s.profile == nil || s.profile.Email != email {
		return nil, service.ErrUserNotFound
	}
	return s.profile, nil
}

func (s *stubUserService) UpdateProfile(user *model.User, update service.ProfileUpdate) (*model.User, error) {
	s.update = update
	updated := *user
	if update.PrimaryCrop != nil {
		updated.PrimaryCrop = *update.PrimaryCrop
	}
	return &updated, nil
}

func (s *stubUserService) Logout(ctx context.Context, tokenString string) error {
	s.loggedOut = tokenString
	return nil
}

func (s *stubUserService) IsTokenRevoked(ctx context.Context, tokenString string) bool { return false }

func (s *stubUserService) RefreshToken(refreshTokenString string) (string, string, error) {
	return "access2", "refresh2", nil
}

func (s *stubUserService) WebsocketToken(user *model.User) (string, error) { return "ws", nil }

type stubConversations struct {
	history []model.ChatMessage
}

func (s *stubConversations) GetConversationHistory(ctx context.Context, userID uint) ([]model.ChatMessage, error) {
	return s.history, nil
}

func (s *stubConversations) AddExchange(ctx context.Context, userID uint, exchange model.ChatExchange) error {
	return nil
}

func newUserRouter(users *stubUserService, convs *stubConversations) *gin.Engine {
	uh, ah := NewUserHandler(users), NewAuthHandler(users)
	r := gin.New()
	r.POST("/register", uh.Register)
	r.POST("/login", ah.Login)
	authed := r.Group("/")
	authed.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUser, &model.User{ID: 3, Email: "a@example.com", PrimaryCrop: "maize"})
		c.Set(middleware.ContextToken, "tok-123")
	})
	authed.GET("/me", uh.GetProfile)
	authed.PUT("/profile", uh.UpdateProfile)
	authed.POST("/logout", ah.Logout)
	authed.GET("/ws-token", NewChatHandler(nil, nil, users, nil, 0).GetWebsocketToken)
	authed.GET("/conversation", NewConversationHandler(convs).GetConversations)
	return r
}

func TestUserHandler_Register(t *testing.T) {
	users := &stubUserService{}
	r := newUserRouter(users, nil)

	w := serve(r, http.MethodPost, "/register", `{"email":"a@example.com","password":"secret1","primaryCrop":"beans"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"primaryCrop":"beans"`)

	assert.Equal(t, 1, users.registered)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/register", `{"email":"a@example.com"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/register", `{"email":"not-an-email","password":"secret1"}`).Code)
	assert.Equal(t, 1, users.registered, "malformed requests never reach the service")

	users.registerErr = service.ErrEmailTaken
	assert.Equal(t, http.StatusConflict, serve(r, http.MethodPost, "/register", `{"email":"a@example.com","password":"secret1"}`).Code)

	users.registerErr = service.ErrWeakPassword
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/register", `{"email":"a@example.com","password":"1"}`).Code)
}

func TestAuthHandler_LoginAndLogout(t *testing.T) {
	users := &stubUserService{}
	r := newUserRouter(users, nil)

	w := serve(r, http.MethodPost, "/login", `{"email":"a@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"refreshToken":"refresh"`)

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/login", `{"email":"a@example.com","password":"nope"}`).Code)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/logout", "").Code)
	assert.Equal(t, "tok-123", users.loggedOut)
}

func TestUserHandler_ProfileAndTokens(t *testing.T) {
	users := &stubUserService{}
	r := newUserRouter(users, nil)

	w := serve(r, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "a@example.com")

	w = serve(r, http.MethodPut, "/profile", `{"primaryCrop":"sorghum"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"primaryCrop":"sorghum"`)
	assert.Nil(t, users.update.Region, "absent fields stay unchanged")

	w = serve(r, http.MethodGet, "/ws-token", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"token":"ws"`)
}

func TestConversationHandler_Limit(t *testing.T) {
	now := time.Now()
	convs := &stubConversations{history: []model.ChatMessage{
		{Role: "user", Content: "q1", Timestamp: now},
		{Role: "assistant", Content: "a1", Timestamp: now},
		{Role: "user", Content: "q2", Timestamp: now},
		{Role: "assistant", Content: "a2", Timestamp: now},
	}}
	r := newUserRouter(&stubUserService{}, convs)

	var resp struct {
		Data []model.ChatMessage `json:"data"`
	}
	w := serve(r, http.MethodGet, "/conversation?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "q2", resp.Data[0].Content)

	w = serve(r, http.MethodGet, "/conversation", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 4)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/conversation?limit=-1", "").Code)

	convs.history = nil
	w = serve(r, http.MethodGet, "/conversation", "")
	assert.JSONEq(t, `{"code":200,"message":"success","data":[]}`, w.Body.String())
}
