package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"farm-advisor-go/internal/knowledge"
	"farm-advisor-go/pkg/log"
	"farm-advisor-go/pkg/tasks"
)

// ErrKnowledgeInvalid 表示提交的知识库文档无法解析。
var ErrKnowledgeInvalid = errors.New("knowledge base document is invalid")

// emptyKnowledgeDocument 是知识库文件不可读时返回给管理员的内容。
const emptyKnowledgeDocument = "[]"

// KnowledgeStore 是知识库服务依赖的存储能力。
type KnowledgeStore interface {
	Path() string
	Snapshot() *knowledge.Base
	Reload() int
	Replace(base *knowledge.Base)
}

// ReloadPublisher 向其他实例广播知识库已更新。
type ReloadPublisher interface {
	PublishReload(ctx context.Context, task tasks.KnowledgeReloadTask) error
}

// KnowledgeService 管理知识库文件：读取、校验后替换、重载以及跨实例同步。
type KnowledgeService interface {
	Document() []byte
	Update(ctx context.Context, data []byte, adminID uint) (int, error)
	Reload(ctx context.Context, adminID uint) int
	Process(ctx context.Context, task tasks.KnowledgeReloadTask) error
}

type knowledgeService struct {
	store      KnowledgeStore
	publisher  ReloadPublisher
	instanceID string
}

// NewKnowledgeService 创建一个新的 KnowledgeService。publisher 可以为 nil（单实例部署）。
func NewKnowledgeService(store KnowledgeStore, publisher ReloadPublisher, instanceID string) KnowledgeService {
	return &knowledgeService{store: store, publisher: publisher, instanceID: instanceID}
}

// Document 返回知识库文件的原始内容，读取失败时返回 "[]"。
func (s *knowledgeService) Document() []byte {
	data, err := os.ReadFile(s.store.Path())
	if err != nil {
		log.Warnf("[KnowledgeService] 读取知识库文件失败: %v", err)
		return []byte(emptyKnowledgeDocument)
	}
	return data
}

// Update 校验并写入新的知识库文档，随后在本实例立即生效并通知其他实例。
func (s *knowledgeService) Update(ctx context.Context, data []byte, adminID uint) (int, error) {
	path := s.store.Path()
	if path == "" {
		return 0, errors.New("knowledge base has no backing file")
	}
	base, err := knowledge.Parse(data, knowledge.FormatFor(path))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrKnowledgeInvalid, err)
	}
	if err := knowledge.WriteFile(path, data); err != nil {
		log.Errorf("[KnowledgeService] 写入知识库文件失败: %v", err)
		return 0, err
	}
	s.store.Replace(base)
	log.Infof("[KnowledgeService] 管理员 %d 更新了知识库, 共 %d 条", adminID, base.Len())

	s.publish(ctx, base.Len(), adminID)
	return base.Len(), nil
}

// Reload 重新读取知识库文件并通知其他实例。
func (s *knowledgeService) Reload(ctx context.Context, adminID uint) int {
	n := s.store.Reload()
	log.Infof("[KnowledgeService] 管理员 %d 触发知识库重载, 共 %d 条", adminID, n)
	s.publish(ctx, n, adminID)
	return n
}

func (s *knowledgeService) publish(ctx context.Context, entries int, adminID uint) {
	if s.publisher == nil {
		return
	}
	task := tasks.KnowledgeReloadTask{
		Origin:      s.instanceID,
		Path:        s.store.Path(),
		Entries:     entries,
		RequestedBy: adminID,
		RequestedAt: time.Now(),
	}
	if err := s.publisher.PublishReload(ctx, task); err != nil {
		log.Errorf("[KnowledgeService] 广播知识库重载失败: %v", err)
	}
}

// Process 处理来自 Kafka 的重载任务，忽略本实例自己发布的任务。
func (s *knowledgeService) Process(ctx context.Context, task tasks.KnowledgeReloadTask) error {
	if task.Origin == s.instanceID {
		return nil
	}
	n := s.store.Reload()
	log.Infof("[KnowledgeService] 收到实例 %s 的重载通知, 已加载 %d 条", task.Origin, n)
	return nil
}
