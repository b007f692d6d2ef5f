// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"figmant-go/internal/config"
	"figmant-go/pkg/log"
	"figmant-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.AttachmentProcessingTask) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceAttachmentTask 发送一个附件处理任务到 Kafka。
func ProduceAttachmentTask(task tasks.AttachmentProcessingTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	err = producer.WriteMessages(context.Background(),
		kafka.Message{
			// 以附件 ID 作为 key，同一附件的重试消息落在同一分区，保持顺序
			Key:   []byte(task.AttachmentID),
			Value: taskBytes,
		},
	)
	return err
}

// StartConsumer 启动一个 Kafka 消费者来处理附件任务。
// 重试预算由处理管道自身持有（编排器内的有界重试循环），终态失败是
// 已处理完毕的结果，因此 Process 返回后总是提交 offset。
func StartConsumer(cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "figmant-go-consumer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break // 退出循环，可能需要重启策略
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.AttachmentProcessingTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理附件任务: ID=%s, FileName=%s", task.AttachmentID, task.FileName)
		// 每个附件任务在独立的 goroutine 中处理，多个附件并发互不影响；
		// offset 在派发后即提交，任务结果全部落在附件状态里。
		go func(t tasks.AttachmentProcessingTask) {
			if err := processor.Process(context.Background(), t); err != nil {
				// Process 只在基础设施异常（如暂存对象读取失败）时返回错误，
				// 管道内的校验/上传失败都已折叠进附件状态。
				log.Errorf("处理附件任务失败: ID=%s, Error: %v", t.AttachmentID, err)
			} else {
				log.Infof("附件任务处理完成: ID=%s", t.AttachmentID)
			}
		}(task)
		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}
