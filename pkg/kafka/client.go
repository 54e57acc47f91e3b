// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"farm-advisor-go/internal/config"
	"farm-advisor-go/pkg/log"
	"farm-advisor-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the knowledge base implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.KnowledgeReloadTask) error
}

// ErrProducerNotReady is returned when publishing before InitProducer.
var ErrProducerNotReady = errors.New("kafka producer is not initialized")

var producer *kafka.Writer

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
}

// CloseProducer 关闭生产者，释放连接。
func CloseProducer() {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
}

// ProduceReloadTask 广播一个知识库重载任务。
func ProduceReloadTask(ctx context.Context, task tasks.KnowledgeReloadTask) error {
	if producer == nil {
		return ErrProducerNotReady
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{Value: taskBytes})
}

// Publisher 将 ProduceReloadTask 适配为服务层使用的通知接口。
type Publisher struct{}

// PublishReload 实现 service.ReloadPublisher。
func (Publisher) PublishReload(ctx context.Context, task tasks.KnowledgeReloadTask) error {
	return ProduceReloadTask(ctx, task)
}

// StartConsumer 启动一个 Kafka 消费者处理重载任务，直到 ctx 被取消。
// 每个实例使用独立的 groupID，这样广播能到达所有实例。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, groupID string, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers(cfg),
		Topic:       cfg.Topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'，消费组 '%s'", cfg.Topic, groupID)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.KnowledgeReloadTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			// 消息格式错误，直接提交，避免阻塞队列
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		} else if err := processor.Process(ctx, task); err != nil {
			// 重载是幂等的，下一次广播会再次触发，这里不做重试
			log.Errorf("处理知识库重载任务失败: origin=%s, error: %v", task.Origin, err)
		}

		if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}
