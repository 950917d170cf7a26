package events

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
)

// publishChannel is the part of *amqp091.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// consumeChannel is the part of *amqp091.Channel the consumer uses.
type consumeChannel interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
}

type AMQPPublisher struct {
	ch    publishChannel
	queue string
}

// DialRabbitMQ connects and declares the durable booking queue.
func DialRabbitMQ(url, queue string) (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return conn, ch, nil
}

func NewAMQPPublisher(ch publishChannel, queue string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, queue: queue}
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		MessageId:    ev.ID.String(),
		Type:         ev.Type,
		Timestamp:    ev.CreatedAt,
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Headers: amqp091.Table{
			"message_type":     "JSON",
			"requeue_strategy": "DROP",
		},
	}

	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Type, err)
	}
	return nil
}

// Handler processes one event. A returned error drops the message.
type Handler func(ctx context.Context, ev Event) error

// Consume reads events from queue until ctx is done or the delivery channel
// closes. Messages are acked after the handler returns.
func Consume(ctx context.Context, ch consumeChannel, queue string, handle Handler, log *zap.Logger) error {
	log = logging.OrNop(log)

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				log.Warn("dropping undecodable event", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			if err := handle(ctx, ev); err != nil {
				log.Error("event handler failed",
					zap.String("type", ev.Type),
					zap.String("event_id", ev.ID.String()),
					zap.Error(err),
				)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
