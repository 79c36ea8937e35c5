package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AnalysisRequest 异步分析请求消息
type AnalysisRequest struct {
	ID    string `json:"id"`
	Path  string `json:"path"`  // APK 文件路径
	Force bool   `json:"force"` // 跳过哈希去重
}

// NewAnalysisRequest 创建带唯一 ID 的分析请求
func NewAnalysisRequest(path string, force bool) *AnalysisRequest {
	return &AnalysisRequest{
		ID:    uuid.New().String(),
		Path:  path,
		Force: force,
	}
}

// Producer 消息生产者
type Producer struct {
	mq     *RabbitMQ
	logger *logrus.Logger
}

// NewProducer 创建生产者
func NewProducer(mq *RabbitMQ, logger *logrus.Logger) *Producer {
	return &Producer{
		mq:     mq,
		logger: logger,
	}
}

// Publish 发布分析请求
func (p *Producer) Publish(ctx context.Context, req *AnalysisRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := p.mq.Publish(ctx, body); err != nil {
		p.logger.WithError(err).WithField("request_id", req.ID).Error("Failed to publish request")
		return fmt.Errorf("failed to publish: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"request_id": req.ID,
		"path":       req.Path,
	}).Info("Analysis request published to queue")

	return nil
}

// GetQueueSize 获取队列大小
func (p *Producer) GetQueueSize() (int, error) {
	messageCount, _, err := p.mq.GetQueueStats()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue stats: %w", err)
	}
	return messageCount, nil
}
