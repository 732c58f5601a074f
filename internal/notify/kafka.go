// Package notify publishes committed order changes to Kafka.
package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter creates a Kafka writer for the given brokers and topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}
}

// Kafka is an order.Notifier that queues events in memory and publishes
// them from Run. Events are keyed by order id so one order's events stay
// ordered within a partition.
type Kafka struct {
	writer  messageWriter
	events  chan order.Event
	timeout time.Duration
	lg      *zap.Logger
}

var _ order.Notifier = (*Kafka)(nil)

// NewKafka creates a notifier with a queue of size buffer.
func NewKafka(w messageWriter, buffer int, lg *zap.Logger) *Kafka {
	if buffer <= 0 {
		buffer = 1
	}
	return &Kafka{
		writer:  w,
		events:  make(chan order.Event, buffer),
		timeout: 5 * time.Second,
		lg:      lg,
	}
}

// Notify enqueues e. When the queue is full the event is dropped.
func (k *Kafka) Notify(_ context.Context, e order.Event) {
	select {
	case k.events <- e:
	default:
		k.lg.Warn("Order event queue full, dropping event",
			zap.String("type", string(e.Type)),
			zap.Int64("order_id", e.OrderID),
		)
	}
}

// Run publishes queued events until ctx is canceled, then flushes what is
// left and closes the writer.
func (k *Kafka) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			k.drain()
			if err := k.writer.Close(); err != nil {
				return errors.Wrap(err, "close kafka writer")
			}
			return nil
		case e := <-k.events:
			k.publish(ctx, e)
		}
	}
}

func (k *Kafka) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	for {
		select {
		case e := <-k.events:
			k.publish(ctx, e)
		default:
			return
		}
	}
}

func (k *Kafka) publish(ctx context.Context, e order.Event) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(e.OrderID, 10)),
		Value: Encode(e),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
		Time: e.At,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.lg.Warn("Publish order event",
			zap.String("type", string(e.Type)),
			zap.Int64("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}

// Encode renders an event as JSON.
func Encode(ev order.Event) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(string(ev.Type)) })
		e.Field("order_id", func(e *jx.Encoder) { e.Int64(ev.OrderID) })
		if ev.UserID != 0 {
			e.Field("user_id", func(e *jx.Encoder) { e.Int64(ev.UserID) })
		}
		if ev.Status != "" {
			e.Field("status", func(e *jx.Encoder) { e.Str(string(ev.Status)) })
			e.Field("payment_method", func(e *jx.Encoder) { e.Str(string(ev.PaymentMethod)) })
			e.Field("payment_status", func(e *jx.Encoder) { e.Str(string(ev.PaymentStatus)) })
			e.Field("total_price", func(e *jx.Encoder) { e.Str(ev.TotalPrice.String()) })
		}
		e.Field("at", func(e *jx.Encoder) { e.Str(ev.At.UTC().Format(time.RFC3339Nano)) })
	})
	return e.Bytes()
}
