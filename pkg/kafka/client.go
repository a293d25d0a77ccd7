// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anzchy/chat-memo-pro-sub000/internal/config"
	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/log"
	"github.com/segmentio/kafka-go"
)

// CaptureHandler 处理一条从 Kafka 收到的页面快照事件。
type CaptureHandler func(ctx context.Context, event model.CaptureEvent) error

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// CloseProducer 关闭生产者并刷新未发送的消息。
func CloseProducer() error {
	if producer == nil {
		return nil
	}
	return producer.Close()
}

// NewCaptureMessage 将快照事件编码为 Kafka 消息，以页面链接为 key，保证同一会话落在同一分区内有序。
func NewCaptureMessage(event model.CaptureEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.Page.URL),
		Value: value,
	}, nil
}

// ProduceCaptureEvent 发送一个页面快照事件到 Kafka。
func ProduceCaptureEvent(ctx context.Context, event model.CaptureEvent) error {
	if producer == nil {
		return errors.New("kafka producer not initialized")
	}
	msg, err := NewCaptureMessage(event)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, msg)
}

// StartConsumer 启动一个 Kafka 消费者来处理页面快照，直到 ctx 被取消。
// 快照是幂等的，处理失败只记录日志，不阻塞后续消息。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, handler CaptureHandler) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var event model.CaptureEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		} else if err := handler(ctx, event); err != nil {
			log.Errorf("处理页面快照失败: url=%s, offset=%d, error: %v", event.Page.URL, m.Offset, err)
		}

		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
