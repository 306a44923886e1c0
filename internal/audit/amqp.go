package audit

import (
	"context"
	"encoding/json"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "EcoBot-Chain/internal/errors"
)

// AMQPConfig 描述统计事件的 RabbitMQ 投递参数。
type AMQPConfig struct {
	URL      string
	Exchange string
	Agent    string
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPRecorder 将统计事件发布到 topic exchange，routing key 为
// statistics.<agent>.<event_type>。
type AMQPRecorder struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	agent    string
}

// NewAMQPRecorder 连接 RabbitMQ 并声明 exchange。
func NewAMQPRecorder(cfg AMQPConfig) (*AMQPRecorder, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, xerrors.New(xerrors.CodeConfigurationMissing, "RabbitMQ URL 不能为空")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "ecobot.statistics"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 RabbitMQ 失败")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建 RabbitMQ channel 失败")
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "声明 RabbitMQ exchange 失败")
	}
	return &AMQPRecorder{conn: conn, ch: ch, exchange: exchange, agent: cfg.Agent}, nil
}

func routingKey(agent, eventType string) string {
	if agent == "" {
		agent = "unknown"
	}
	return "statistics." + agent + "." + strings.ToLower(eventType)
}

// Record 实现 Recorder 接口。
func (r *AMQPRecorder) Record(ctx context.Context, event Event) error {
	if r == nil || r.ch == nil {
		return xerrors.New(xerrors.CodeStorageFailure, "RabbitMQ 未初始化")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化统计事件失败")
	}
	err = r.ch.PublishWithContext(ctx, r.exchange, routingKey(r.agent, event.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.Timestamp,
		Type:         event.Type,
		AppId:        r.agent,
		Body:         body,
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "发布统计事件失败")
	}
	return nil
}

// Close 实现 Recorder 接口。
func (r *AMQPRecorder) Close() error {
	if r == nil {
		return nil
	}
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
