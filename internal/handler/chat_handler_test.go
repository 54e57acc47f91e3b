package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"farm-advisor-go/internal/knowledge"
	"farm-advisor-go/internal/matcher"
	"farm-advisor-go/internal/middleware"
	"farm-advisor-go/internal/model"
	"farm-advisor-go/internal/safety"
	"farm-advisor-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubChatService struct {
	result  service.ChatResult
	profile model.UserProfile
	message string
	image   string
}

func (s *stubChatService) HandleChat(ctx context.Context, profile model.UserProfile, message, image string) service.ChatResult {
	s.profile, s.message, s.image = profile, message, image
	return s.result
}

type recordingRecorder struct {
	calls []service.ChatResult
}

func (r *recordingRecorder) Record(ctx context.Context, result service.ChatResult, image string) {
	r.calls = append(r.calls, result)
}

func newChatRouter(h *ChatHandler, user *model.User) *gin.Engine {
	r := gin.New()
	r.POST("/chat", func(c *gin.Context) {
		if user != nil {
			c.Set(middleware.ContextUser, user)
		}
		c.Next()
	}, h.Chat)
	return r
}

func postChat(t *testing.T, r *gin.Engine, body string) (int, string) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var resp struct {
		Response string `json:"response"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp.Response
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusFor(service.ChatResult{Kind: service.KindText}))
	assert.Equal(t, http.StatusBadRequest, StatusFor(service.ChatResult{Kind: service.KindBlocked, ClientError: true}))
	assert.Equal(t, http.StatusOK, StatusFor(service.ChatResult{Kind: service.KindInvalidInput}))
	assert.Equal(t, http.StatusBadRequest, StatusFor(service.ChatResult{Kind: service.KindImageError, ClientError: true}))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(service.ChatResult{Kind: service.KindInternalError}))
}

func TestChatHandler_PassesProfileAndRecords(t *testing.T) {
	svc := &stubChatService{result: service.ChatResult{Reply: "Apply nitrogen.", Kind: service.KindText}}
	rec := &recordingRecorder{}
	user := &model.User{ID: 7, Email: "a@example.com", PrimaryCrop: "maize", Region: "west", PreferredLanguage: "en"}

	code, reply := postChat(t, newChatRouter(NewChatHandler(svc, rec, nil, nil, 0), user), `{"message":"yellow leaves"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Apply nitrogen.", reply)
	assert.Equal(t, "yellow leaves", svc.message)
	require.NotNil(t, svc.profile.UserID)
	assert.Equal(t, uint(7), *svc.profile.UserID)
	assert.Equal(t, "maize", svc.profile.PrimaryCrop)
	assert.Len(t, rec.calls, 1)
}

func TestChatHandler_AnonymousUser(t *testing.T) {
	svc := &stubChatService{result: service.ChatResult{Reply: "ok", Kind: service.KindText}}
	code, _ := postChat(t, newChatRouter(NewChatHandler(svc, &recordingRecorder{}, nil, nil, 0), nil), `{"message":"hi"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, svc.profile.UserID)
	assert.Equal(t, model.DefaultLanguage, svc.profile.Language())
}

func TestChatHandler_StatusCodesAndRecording(t *testing.T) {
	cases := []struct {
		name     string
		result   service.ChatResult
		code     int
		recorded bool
	}{
		{"blocked", service.ChatResult{Reply: service.BlockedReply, Kind: service.KindBlocked, ClientError: true}, http.StatusBadRequest, false},
		{"empty", service.ChatResult{Reply: service.PromptReply, Kind: service.KindInvalidInput}, http.StatusOK, false},
		{"image", service.ChatResult{Reply: "🌿 Leaf looks healthy", Kind: service.KindImage}, http.StatusOK, true},
		{"image error", service.ChatResult{Reply: service.ImageErrorReply, Kind: service.KindImageError, ClientError: true}, http.StatusBadRequest, false},
		{"internal", service.ChatResult{Reply: service.InternalErrorReply, Kind: service.KindInternalError}, http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recordingRecorder{}
			h := NewChatHandler(&stubChatService{result: tc.result}, rec, nil, nil, 0)
			code, reply := postChat(t, newChatRouter(h, nil), `{"message":"x"}`)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.result.Reply, reply)
			assert.Equal(t, tc.recorded, len(rec.calls) == 1)
		})
	}
}

func TestChatHandler_MalformedBodyIsEmptyRequest(t *testing.T) {
	svc := &stubChatService{result: service.ChatResult{Reply: service.PromptReply, Kind: service.KindInvalidInput}}
	code, reply := postChat(t, newChatRouter(NewChatHandler(svc, nil, nil, nil, 0), nil), `{not json`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, service.PromptReply, reply)
	assert.Empty(t, svc.message)
	assert.Empty(t, svc.image)
}

func TestChatHandler_BodyTooLarge(t *testing.T) {
	svc := &stubChatService{}
	h := NewChatHandler(svc, nil, nil, nil, 64)
	code, reply := postChat(t, newChatRouter(h, nil), `{"message":"`+strings.Repeat("a", 200)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, service.TooLargeReply, reply)
	assert.NotEqual(t, service.ImageErrorReply, reply)
	assert.Empty(t, svc.message, "the core flow never ran")
}

func TestChatHandler_EndToEnd(t *testing.T) {
	base := knowledge.NewBase([]knowledge.Entry{
		{Triggers: []string{"yellow"}, Answer: "Yellowing {crop} usually means nitrogen deficiency.", Tags: []string{"maize"}},
	})
	chat := service.NewChatService(matcher.New(knowledge.NewStaticStore(base)), safety.NewFilter(), nil)
	rec := &recordingRecorder{}
	r := newChatRouter(NewChatHandler(chat, rec, nil, nil, 1<<20), &model.User{ID: 1, PrimaryCrop: "maize"})

	code, reply := postChat(t, r, `{"message":"My leaves are YELLOW"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Yellowing maize usually means nitrogen deficiency.", reply)

	code, reply = postChat(t, r, `{"message":"how to make a bomb"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, service.BlockedReply, reply)

	code, reply = postChat(t, r, `{"image":"data:image/png;base64,bm90IGFuIGltYWdl"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, service.ImageErrorReply, reply)

	code, reply = postChat(t, r, `{"message":"   "}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, service.PromptReply, reply)

	require.Len(t, rec.calls, 1, "only the answered text question is recorded")
	assert.Equal(t, service.KindText, rec.calls[0].Kind)
}
