package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/tour-booking/internal/logger"
	"github.com/iliyamo/tour-booking/internal/metrics"
)

// Handler processes one message body.
type Handler func(ctx context.Context, body []byte) error

// Handlers maps queue names to their handler.
type Handlers map[string]Handler

// StartConsumer connects to RabbitMQ, declares every queue in handlers and
// consumes them until ctx is cancelled.  Connection failures are retried
// with exponential backoff capped at 30s.  A message whose handler fails is
// rejected without requeue so a poison message cannot spin the loop.
func StartConsumer(ctx context.Context, url string, handlers Handlers) error {
	log := logger.Ctx(ctx)
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("queue consumer: failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, handlers)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("queue consumer: consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type delivery struct {
	queue string
	amqp.Delivery
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, handlers Handlers) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("queue consumer: set QoS failed")
	}

	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	merged := make(chan delivery)
	for _, name := range names {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		msgs, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		go func(name string, msgs <-chan amqp.Delivery) {
			for d := range msgs {
				select {
				case merged <- delivery{queue: name, Delivery: d}:
				case <-ctx.Done():
					return
				}
			}
		}(name, msgs)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return errors.New("connection closed")
		case d := <-merged:
			dispatch(ctx, handlers, d.queue, deliveryMessage{d.Delivery})
		}
	}
}

// message is the subset of amqp.Delivery dispatch needs.
type message interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
	body() []byte
}

type deliveryMessage struct{ amqp.Delivery }

func (m deliveryMessage) body() []byte { return m.Body }

// dispatch runs the handler for one message and acks or rejects it.
func dispatch(ctx context.Context, handlers Handlers, queue string, m message) {
	h, ok := handlers[queue]
	if !ok {
		_ = m.Nack(false, false)
		return
	}
	err := h(ctx, m.body())
	metrics.RecordJob(queue, err)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("queue", queue).Msg("queue consumer: handle message failed")
		_ = m.Nack(false, false)
		return
	}
	_ = m.Ack(false)
}
