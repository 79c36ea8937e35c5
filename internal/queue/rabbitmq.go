package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/apkshield/apkshield-go/internal/retry"
)

// RabbitMQConfig 队列连接配置
type RabbitMQConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	VHost     string
	Heartbeat time.Duration // 0 时取 10 秒
}

func (c *RabbitMQConfig) uri() string {
	u := amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     c.Port,
		Username: c.User,
		Password: c.Password,
		Vhost:    c.VHost,
	}
	return u.String()
}

// RabbitMQ 分析任务队列客户端。掉线后通过 reconnect 信号 + Reconnect 恢复，
// 消费侧收到信号后负责重新订阅。
type RabbitMQ struct {
	config    *RabbitMQConfig
	logger    *logrus.Logger
	queueName string
	prefetch  int // 与分析 worker 数一致，保证并行消费不过载

	mu        sync.RWMutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	notify    chan *amqp.Error
	closed    bool
	reconnect chan struct{}
}

// NewRabbitMQ 建立连接并声明分析任务队列
func NewRabbitMQ(config *RabbitMQConfig, queueName string, prefetchCount int, logger *logrus.Logger) (*RabbitMQ, error) {
	if prefetchCount <= 0 {
		prefetchCount = 1
	}
	if config.Heartbeat == 0 {
		config.Heartbeat = 10 * time.Second
	}

	mq := &RabbitMQ{
		config:    config,
		logger:    logger,
		queueName: queueName,
		prefetch:  prefetchCount,
		reconnect: make(chan struct{}, 1),
	}

	if err := mq.dial(); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return mq, nil
}

// dial 建连、开 channel、设 QoS、声明持久化队列，并注册关闭通知
func (mq *RabbitMQ) dial() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	conn, err := amqp.DialConfig(mq.config.uri(), amqp.Config{
		Heartbeat: mq.config.Heartbeat,
		Locale:    "en_US",
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(mq.prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	if _, err := ch.QueueDeclare(mq.queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare queue %s: %w", mq.queueName, err)
	}

	// Connection 和 Channel 的关闭事件汇入同一个通知通道
	notify := make(chan *amqp.Error, 2)
	conn.NotifyClose(notify)
	ch.NotifyClose(notify)

	mq.conn = conn
	mq.channel = ch
	mq.notify = notify

	mq.logger.WithFields(logrus.Fields{
		"host":     mq.config.Host,
		"port":     mq.config.Port,
		"queue":    mq.queueName,
		"prefetch": mq.prefetch,
	}).Info("队列连接已建立")

	return nil
}

// StartConnectionWatcher 监听关闭事件并发出重连信号，直到客户端关闭
func (mq *RabbitMQ) StartConnectionWatcher() {
	go func() {
		for {
			mq.mu.RLock()
			closed := mq.closed
			notify := mq.notify
			mq.mu.RUnlock()
			if closed {
				return
			}

			amqpErr, ok := <-notify
			mq.mu.RLock()
			closed = mq.closed
			mq.mu.RUnlock()
			if closed {
				return
			}

			if !ok || amqpErr == nil {
				mq.logger.Warn("队列连接关闭")
			} else {
				mq.logger.WithError(amqpErr).Error("队列连接异常断开")
			}
			mq.signalReconnect()

			// 等待 Reconnect 换掉 notify 通道后再继续监听
			time.Sleep(time.Second)
		}
	}()
}

func (mq *RabbitMQ) signalReconnect() {
	select {
	case mq.reconnect <- struct{}{}:
	default: // 已有待处理信号
	}
}

// Reconnect 丢弃旧连接并按退避策略重建
func (mq *RabbitMQ) Reconnect() error {
	mq.teardown()

	policy := retry.DefaultPolicy()
	policy.Attempts = 10
	policy.BaseDelay = time.Second
	policy.MaxDelay = 30 * time.Second
	policy.Logger = mq.logger

	return retry.Do(context.Background(), policy, "rabbitmq_reconnect", func(ctx context.Context) error {
		return mq.dial()
	})
}

// teardown 关闭现有连接，不触碰 closed 标志
func (mq *RabbitMQ) teardown() {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.channel != nil {
		mq.channel.Close()
		mq.channel = nil
	}
	if mq.conn != nil {
		mq.conn.Close()
		mq.conn = nil
	}
}

// Publish 发布持久化消息到分析队列
func (mq *RabbitMQ) Publish(ctx context.Context, body []byte) error {
	mq.mu.RLock()
	ch := mq.channel
	mq.mu.RUnlock()
	if ch == nil {
		return fmt.Errorf("not connected")
	}

	return ch.PublishWithContext(ctx, "", mq.queueName, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
	})
}

// Consume 订阅分析队列，手动确认
func (mq *RabbitMQ) Consume() (<-chan amqp.Delivery, error) {
	mq.mu.RLock()
	ch := mq.channel
	mq.mu.RUnlock()
	if ch == nil {
		return nil, fmt.Errorf("not connected")
	}

	msgs, err := ch.Consume(mq.queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", mq.queueName, err)
	}
	return msgs, nil
}

// GetQueueStats 返回积压消息数与消费者数
func (mq *RabbitMQ) GetQueueStats() (messageCount, consumerCount int, err error) {
	mq.mu.RLock()
	ch := mq.channel
	mq.mu.RUnlock()
	if ch == nil {
		return 0, 0, fmt.Errorf("not connected")
	}

	q, err := ch.QueueInspect(mq.queueName)
	if err != nil {
		return 0, 0, err
	}
	return q.Messages, q.Consumers, nil
}

// Close 关闭客户端，停止 watcher
func (mq *RabbitMQ) Close() error {
	mq.mu.Lock()
	mq.closed = true
	ch := mq.channel
	conn := mq.conn
	mq.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil {
			mq.logger.WithError(err).Warn("关闭 channel 失败")
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			mq.logger.WithError(err).Warn("关闭连接失败")
		}
	}

	mq.logger.Info("队列客户端已关闭")
	return nil
}

// GetReconnectChan 返回重连信号通道
func (mq *RabbitMQ) GetReconnectChan() <-chan struct{} {
	return mq.reconnect
}

// IsConnected 检查底层连接是否存活
func (mq *RabbitMQ) IsConnected() bool {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.conn != nil && !mq.conn.IsClosed()
}
