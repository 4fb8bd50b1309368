package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeName = "call-processing"
	queueName    = "insight-extraction"
)

// ProcessTask asks the background worker to run insight extraction for one
// call.
type ProcessTask struct {
	CallID string `json:"call_id"`
}

// Client wraps a RabbitMQ connection used to hand newly ingested calls to
// the insight-extraction worker.
type Client struct {
	conn   *amqp.Connection
	logger *log.Logger
}

// Dial connects to the broker and declares the processing exchange.
func Dial(url string, logger *log.Logger) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchangeName, "direct", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	logger.Printf("queue: connected to rabbitmq")
	return &Client{conn: conn, logger: logger}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// PublishProcess enqueues an extraction task for a call.
func (c *Client) PublishProcess(ctx context.Context, callID string) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	body, err := json.Marshal(ProcessTask{CallID: callID})
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	err = ch.PublishWithContext(ctx, exchangeName, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Consume binds a durable queue to the processing exchange and delivers
// tasks until ctx is cancelled. Malformed messages are logged and dropped,
// never requeued.
func (c *Client) Consume(ctx context.Context) (<-chan ProcessTask, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchangeName, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}

	tasks := make(chan ProcessTask)
	go func() {
		defer close(tasks)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var task ProcessTask
				if err := json.Unmarshal(d.Body, &task); err != nil {
					c.logger.Printf("queue: dropping malformed task: %v", err)
					continue
				}
				select {
				case tasks <- task:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return tasks, nil
}
