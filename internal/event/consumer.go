package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"
	"github.com/yuju-k/happy-wave/internal/dispatch"
	"github.com/yuju-k/happy-wave/internal/models"
)

const (
	maxRetries  = 3
	retryHeader = "x-retry-count"
	retrySuffix = ".retry"
	contentType = "application/json"
)

var errMalformedEvent = errors.New("malformed event")

type MessageDispatcher interface {
	Dispatch(ctx context.Context, roomID, messageID string, msg models.ChatMessage) (dispatch.Result, error)
}

// publisher is the part of *amqp.Channel used to schedule retries.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type QueueConsumer struct {
	conn            *amqp.Connection
	channel         *amqp.Channel
	publisher       publisher
	dispatcher      MessageDispatcher
	queueName       string
	deadLetterQueue string
	timeout         time.Duration
}

type ConsumerConfig struct {
	RabbitMQURL     string
	QueueName       string
	DeadLetterQueue string
	PrefetchCount   int
	// Timeout bounds the handling of a single delivery.
	Timeout time.Duration
}

func NewQueueConsumer(cfg *ConsumerConfig, dispatcher MessageDispatcher) (*QueueConsumer, error) {
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := declareTopology(ch, cfg.QueueName, cfg.DeadLetterQueue); err != nil {
		conn.Close()
		return nil, err
	}

	return &QueueConsumer{
		conn:            conn,
		channel:         ch,
		publisher:       ch,
		dispatcher:      dispatcher,
		queueName:       cfg.QueueName,
		deadLetterQueue: cfg.DeadLetterQueue,
		timeout:         cfg.Timeout,
	}, nil
}

// declareTopology declares the main queue (rejections go to the DLQ) and one
// retry queue per attempt. Each retry queue has a fixed TTL, so messages expire
// in arrival order and flow back into the main queue.
func declareTopology(ch *amqp.Channel, queue, dlq string) error {
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	_, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		_, err = ch.QueueDeclare(retryQueueName(queue, attempt), true, false, false, false, amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": queue,
			"x-message-ttl":             retryDelay(attempt).Milliseconds(),
		})
		if err != nil {
			return fmt.Errorf("failed to declare retry queue %d: %w", attempt, err)
		}
	}
	return nil
}

func (q *QueueConsumer) StartConsuming(ctx context.Context) error {
	msgs, err := q.channel.Consume(
		q.queueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("Consuming chat message events", "queue", q.queueName)

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			q.handleDelivery(ctx, msg)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *QueueConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	err := q.processMessage(ctx, msg.Body)
	retryCount := retryCountOf(msg.Headers)

	switch nextAction(err, retryCount) {
	case actionAck:
		if err := msg.Ack(false); err != nil {
			slog.Error("Failed to ack message", "error", err)
		}
	case actionRetry:
		slog.Warn("Error processing message, scheduling retry", "error", err, "retry", retryCount+1)
		if err := q.requeueMessage(msg, retryCount+1); err != nil {
			slog.Error("Failed to requeue message", "error", err)
			if err := msg.Nack(false, false); err != nil {
				slog.Error("Failed to nack message", "error", err)
			}
			return
		}
		if err := msg.Ack(false); err != nil {
			slog.Error("Failed to ack requeued message", "error", err)
		}
	case actionDeadLetter:
		slog.Error("Message sent to DLQ", "error", err, "retries", retryCount, "dlq", q.deadLetterQueue)
		if err := msg.Nack(false, false); err != nil {
			slog.Error("Failed to nack message", "error", err)
		}
	}
}

func (q *QueueConsumer) processMessage(ctx context.Context, body []byte) error {
	var evt MessageCreatedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}

	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	res, err := q.dispatcher.Dispatch(ctx, evt.RoomID, evt.MessageID, evt.Message)
	if err != nil {
		return fmt.Errorf("failed to dispatch notification: %w", err)
	}
	slog.Info("Chat message event handled",
		"room_id", evt.RoomID,
		"message_id", evt.MessageID,
		"outcome", res.Outcome,
		"reason", res.Reason,
	)
	return nil
}

type action int

const (
	actionAck action = iota
	actionRetry
	actionDeadLetter
)

func nextAction(err error, retryCount int) action {
	switch {
	case err == nil:
		return actionAck
	case errors.Is(err, errMalformedEvent):
		return actionDeadLetter
	case retryCount < maxRetries:
		return actionRetry
	default:
		return actionDeadLetter
	}
}

func retryCountOf(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func retryDelay(retryCount int) time.Duration {
	return time.Duration(retryCount*retryCount) * time.Second
}

func retryQueueName(queue string, attempt int) string {
	return fmt.Sprintf("%s%s.%d", queue, retrySuffix, attempt)
}

func (q *QueueConsumer) requeueMessage(msg amqp.Delivery, retryCount int) error {
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retryHeader] = int32(retryCount)

	retryQueue := retryQueueName(q.queueName, retryCount)
	return q.publisher.Publish(
		"",         // exchange
		retryQueue, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  contentType,
			DeliveryMode: amqp.Persistent,
			Body:         msg.Body,
			Headers:      headers,
		},
	)
}

func (q *QueueConsumer) Close() error {
	if err := q.channel.Close(); err != nil {
		return err
	}
	return q.conn.Close()
}
