// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"farm-advisor-go/internal/leafhealth"
	"farm-advisor-go/internal/model"
	"farm-advisor-go/internal/safety"
	"farm-advisor-go/pkg/log"
)

// 固定回复文本。
const (
	PromptReply        = "Please type a question or upload an image."
	ImageErrorReply    = "⚠️ We couldn't read that image. Please upload a clear PNG or JPEG photo of the leaf."
	BlockedReply       = "⚠️ Message contains prohibited content."
	InternalErrorReply = "⚠️ An unexpected error occurred. Please try again."
	TooLargeReply      = "⚠️ That request is too large. Please send a shorter message or a smaller photo."
)

// ChatKind 标识一次聊天请求走了哪条处理路径。
type ChatKind string

const (
	KindInvalidInput  ChatKind = "invalid_input"
	KindImage         ChatKind = "image"
	KindImageError    ChatKind = "image_error"
	KindBlocked       ChatKind = "blocked"
	KindText          ChatKind = "text"
	KindInternalError ChatKind = "internal_error"
)

// ChatResult 是核心流程的输出，调用方总能拿到可展示的文本。
type ChatResult struct {
	Reply       string
	Kind        ChatKind
	ClientError bool
	UserID      *uint
	UserMessage string
}

// Persistable 只有正常的文本与图片回复才会写入聊天记录。
func (r ChatResult) Persistable() bool {
	return r.Kind == KindText || r.Kind == KindImage
}

// Exchange 构造交给调用方持久化的交互记录。
func (r ChatResult) Exchange(now time.Time) model.ChatExchange {
	return model.ChatExchange{
		UserID:      r.UserID,
		UserMessage: r.UserMessage,
		BotResponse: r.Reply,
		CreatedAt:   now,
	}
}

// TextMatcher 根据用户画像为文本问题挑选回复。
type TextMatcher interface {
	ProcessMessage(profile model.UserProfile, message string) string
}

// ContentFilter 对输入做屏蔽检查、对输出做脱敏。
type ContentFilter interface {
	ContainsBlocked(text string) bool
	SanitizeOutput(text string) string
}

// ImageAnalyzer 分析 base64 图片载荷。
type ImageAnalyzer func(payload string) (leafhealth.HealthAssessment, error)

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	HandleChat(ctx context.Context, profile model.UserProfile, message, image string) ChatResult
}

type chatService struct {
	matcher TextMatcher
	filter  ContentFilter
	analyze ImageAnalyzer
}

// NewChatService 创建一个新的 ChatService 实例。filter 为 nil 时所有文本都按被屏蔽处理；
// analyze 为 nil 时使用 leafhealth.AnalyzePayload。
func NewChatService(matcher TextMatcher, filter ContentFilter, analyze ImageAnalyzer) ChatService {
	if filter == nil {
		filter = (*safety.Filter)(nil)
	}
	if analyze == nil {
		analyze = leafhealth.AnalyzePayload
	}
	return &chatService{matcher: matcher, filter: filter, analyze: analyze}
}

// HandleChat 执行一次问答：图片优先，其次是经过安全检查的文本。
func (s *chatService) HandleChat(ctx context.Context, profile model.UserProfile, message, image string) (result ChatResult) {
	message = strings.TrimSpace(message)
	image = strings.TrimSpace(image)

	result = ChatResult{UserID: profile.UserID, UserMessage: message}
	if message == "" && image == "" {
		result.Reply = PromptReply
		result.Kind = KindInvalidInput
		return result
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorw("[ChatService] 处理聊天请求时发生异常", "panic", fmt.Sprint(r), "kind", result.Kind)
			result.Reply = InternalErrorReply
			result.Kind = KindInternalError
			result.ClientError = false
		}
	}()

	if image != "" {
		if message == "" {
			result.UserMessage = model.ImageMessageLabel
		}
		return s.handleImage(image, result)
	}
	return s.handleText(profile, message, result)
}

func (s *chatService) handleImage(image string, result ChatResult) ChatResult {
	result.Kind = KindImage
	assessment, err := s.analyze(image)
	if err != nil {
		if !errors.Is(err, leafhealth.ErrImageDecode) {
			log.Errorw("[ChatService] 图片分析失败", "error", err)
			return ChatResult{
				Reply:       InternalErrorReply,
				Kind:        KindInternalError,
				UserID:      result.UserID,
				UserMessage: result.UserMessage,
			}
		}
		log.Warnw("[ChatService] 图片解码失败", "error", err)
		result.Reply = ImageErrorReply
		result.Kind = KindImageError
		result.ClientError = true
		return result
	}
	log.Infow("[ChatService] 叶片分析完成", "ratio", assessment.Ratio, "category", assessment.Category.String())
	result.Reply = assessment.Reply()
	return result
}

func (s *chatService) handleText(profile model.UserProfile, message string, result ChatResult) ChatResult {
	result.Kind = KindText
	if s.filter.ContainsBlocked(message) {
		log.Warnw("[ChatService] 消息包含屏蔽内容", "userId", profile.UserID)
		result.Reply = BlockedReply
		result.Kind = KindBlocked
		result.ClientError = true
		return result
	}
	if s.matcher == nil {
		panic("chat service has no text matcher")
	}
	reply := s.matcher.ProcessMessage(profile, message)
	result.Reply = s.filter.SanitizeOutput(reply)
	return result
}
