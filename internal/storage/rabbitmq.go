package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/k-surya-teja/skillbias/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ 封装分析事件的发布与消费。
// 发布端共用一个受锁保护的通道；每个消费者持有自己的独立通道，
// 避免Qos设置与发布操作互相干扰。
type RabbitMQ struct {
	conn *amqp.Connection
	cfg  *config.RabbitMQConfig

	pubMu   sync.Mutex
	pubCh   *amqp.Channel
	declMu  sync.Mutex
	declSet map[string]struct{} // 已声明的交换机/队列/绑定，避免重复声明
}

// NewRabbitMQ 建立连接并打开发布通道。
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器 (%s): %w", cfg.URL, err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("打开发布通道失败: %w", err)
	}

	log.Printf("成功连接到RabbitMQ服务器: %s", cfg.URL)
	return &RabbitMQ{
		conn:    conn,
		cfg:     cfg,
		pubCh:   pubCh,
		declSet: make(map[string]struct{}),
	}, nil
}

// Close 关闭底层连接，所有通道随之失效。
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// SetupAnalysisTopology 声明分析流水线所需的交换机、队列和绑定。
// 提交事件走topic交换机，消费者队列只订阅submitted路由键。
func (r *RabbitMQ) SetupAnalysisTopology() error {
	if err := r.declareExchange(r.cfg.AnalysisEventsExchange, "topic", true); err != nil {
		return fmt.Errorf("声明分析事件交换机失败: %w", err)
	}
	if err := r.declareQueue(r.cfg.AnalysisQueue, true); err != nil {
		return fmt.Errorf("声明分析队列失败: %w", err)
	}
	if err := r.bindQueue(r.cfg.AnalysisQueue, r.cfg.AnalysisEventsExchange, r.cfg.SubmittedRoutingKey); err != nil {
		return fmt.Errorf("绑定分析队列失败: %w", err)
	}
	return nil
}

// PublishAnalysisCompleted 发布分析完成事件。
// 提交事件不在这里直接发布，而是经由outbox中继保证投递。
func (r *RabbitMQ) PublishAnalysisCompleted(ctx context.Context, msg *AnalysisCompletedMessage) error {
	return r.publishJSON(ctx, r.cfg.AnalysisEventsExchange, r.cfg.CompletedRoutingKey, msg)
}

// PublishMessage 在共享发布通道上投递一条消息。
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchange, routingKey string, body []byte, persistent bool) error {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	deliveryMode := amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}

	return r.pubCh.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: uint8(deliveryMode),
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

func (r *RabbitMQ) publishJSON(ctx context.Context, exchange, routingKey string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("事件JSON序列化失败: %w", err)
	}
	return r.PublishMessage(ctx, exchange, routingKey, body, true)
}

// withChannel 在一个临时通道上执行声明操作后立即关闭它。
func (r *RabbitMQ) withChannel(fn func(*amqp.Channel) error) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("打开RabbitMQ通道失败: %w", err)
	}
	defer ch.Close()
	return fn(ch)
}

func (r *RabbitMQ) declareExchange(name, kind string, durable bool) error {
	if name == "" {
		return fmt.Errorf("exchange名称不能为空")
	}

	key := "x:" + name
	r.declMu.Lock()
	defer r.declMu.Unlock()
	if _, done := r.declSet[key]; done {
		return nil
	}

	err := r.withChannel(func(ch *amqp.Channel) error {
		return ch.ExchangeDeclare(name, kind, durable, false, false, false, nil)
	})
	if err != nil {
		return err
	}
	r.declSet[key] = struct{}{}
	log.Printf("已声明exchange: '%s'", name)
	return nil
}

func (r *RabbitMQ) declareQueue(name string, durable bool) error {
	key := "q:" + name
	r.declMu.Lock()
	defer r.declMu.Unlock()
	if _, done := r.declSet[key]; done {
		return nil
	}

	err := r.withChannel(func(ch *amqp.Channel) error {
		_, declErr := ch.QueueDeclare(name, durable, false, false, false, nil)
		return declErr
	})
	if err != nil {
		return err
	}
	r.declSet[key] = struct{}{}
	log.Printf("已声明队列: %s", name)
	return nil
}

func (r *RabbitMQ) bindQueue(queue, exchange, routingKey string) error {
	key := fmt.Sprintf("b:%s:%s:%s", exchange, queue, routingKey)
	r.declMu.Lock()
	defer r.declMu.Unlock()
	if _, done := r.declSet[key]; done {
		return nil
	}

	err := r.withChannel(func(ch *amqp.Channel) error {
		return ch.QueueBind(queue, routingKey, exchange, false, nil)
	})
	if err != nil {
		return err
	}
	r.declSet[key] = struct{}{}
	log.Printf("已绑定队列 %s 到exchange %s，路由键: %s", queue, exchange, routingKey)
	return nil
}

// StartConsumer 在独立通道上启动消费者。
// handler返回true表示确认消息；返回false表示拒绝并重新入队，
// 业务层对确定性失败应自行落库后返回true，避免消息无限循环。
func (r *RabbitMQ) StartConsumer(queueName string, prefetchCount int, handler func([]byte) bool) (chan<- struct{}, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("打开消费者通道失败: %w", err)
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("设置QoS失败: %w", err)
	}

	deliveries, err := ch.Consume(
		queueName,
		"", // 消费者标签由server生成
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("注册消费者失败: %w", err)
	}

	stopCh := make(chan struct{})
	go func() {
		defer ch.Close()
		defer log.Printf("RabbitMQ消费者已停止: %s", queueName)

		log.Printf("RabbitMQ消费者已启动，队列: %s, 预取数量: %d", queueName, prefetchCount)
		for {
			select {
			case <-stopCh:
				return
			case delivery, ok := <-deliveries:
				if !ok {
					log.Println("RabbitMQ消费者通道已关闭")
					return
				}
				if handler(delivery.Body) {
					if err := delivery.Ack(false); err != nil {
						log.Printf("确认消息失败: %v", err)
					}
				} else {
					if err := delivery.Nack(false, true); err != nil {
						log.Printf("拒绝消息失败: %v", err)
					}
				}
			}
		}
	}()

	return stopCh, nil
}
