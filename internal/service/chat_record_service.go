package service

import (
	"context"
	"time"

	"farm-advisor-go/internal/leafhealth"
	"farm-advisor-go/internal/model"
	"farm-advisor-go/internal/repository"
	"farm-advisor-go/pkg/log"
)

// ExchangeIndexer 将聊天记录写入全文索引。
type ExchangeIndexer interface {
	IndexExchange(ctx context.Context, doc model.EsChatDocument) error
}

// ChatRecorder 持久化一次成功的问答。所有失败只记录日志，不影响已返回给用户的回复。
type ChatRecorder interface {
	Record(ctx context.Context, result ChatResult, image string)
}

type chatRecorder struct {
	historyRepo   repository.ChatHistoryRepository
	conversations ConversationService
	indexer       ExchangeIndexer
	images        repository.LeafImageRepository
	now           func() time.Time
}

// NewChatRecorder 创建一个新的 ChatRecorder。除 historyRepo 外的依赖都可以为 nil，对应的写入会被跳过。
func NewChatRecorder(historyRepo repository.ChatHistoryRepository, conversations ConversationService, indexer ExchangeIndexer, images repository.LeafImageRepository) ChatRecorder {
	return &chatRecorder{
		historyRepo:   historyRepo,
		conversations: conversations,
		indexer:       indexer,
		images:        images,
		now:           time.Now,
	}
}

// Record 依次写入 MySQL、Elasticsearch、Redis 最近对话和 MinIO 图片归档。
func (r *chatRecorder) Record(ctx context.Context, result ChatResult, image string) {
	if !result.Persistable() {
		return
	}
	exchange := result.Exchange(r.now())

	record := model.NewChatHistory(exchange)
	if r.historyRepo != nil {
		if err := r.historyRepo.Create(record); err != nil {
			log.Errorf("[ChatRecorder] 保存聊天记录失败 (non-critical): %v", err)
			record = nil
		}
	} else {
		record = nil
	}

	if record != nil && r.indexer != nil {
		doc := model.EsChatDocument{
			HistoryID:   record.ID,
			UserID:      record.UserID,
			UserMessage: record.UserMessage,
			BotResponse: record.BotResponse,
			CreatedAt:   record.CreatedAt,
		}
		if err := r.indexer.IndexExchange(ctx, doc); err != nil {
			log.Errorf("[ChatRecorder] 索引聊天记录失败, id: %d, error: %v", record.ID, err)
		}
	}

	if exchange.UserID != nil && r.conversations != nil {
		if err := r.conversations.AddExchange(ctx, *exchange.UserID, exchange); err != nil {
			log.Errorf("[ChatRecorder] 更新最近对话失败, userId: %d, error: %v", *exchange.UserID, err)
		}
	}

	if result.Kind == KindImage && image != "" && r.images != nil {
		r.archiveImage(ctx, record, exchange, image)
	}
}

func (r *chatRecorder) archiveImage(ctx context.Context, record *model.ChatHistory, exchange model.ChatExchange, image string) {
	raw, err := leafhealth.DecodePayload(image)
	if err != nil {
		log.Warnf("[ChatRecorder] 归档图片时解码失败: %v", err)
		return
	}
	object, err := r.images.Save(ctx, exchange.UserID, raw, exchange.CreatedAt)
	if err != nil {
		log.Errorf("[ChatRecorder] 归档叶片图片失败: %v", err)
		return
	}
	log.Infof("[ChatRecorder] 叶片图片已归档: %s", object)
	if record == nil || r.historyRepo == nil {
		return
	}
	if err := r.historyRepo.UpdateImageObject(record.ID, object); err != nil {
		log.Errorf("[ChatRecorder] 更新图片对象名失败, id: %d, error: %v", record.ID, err)
	}
}
