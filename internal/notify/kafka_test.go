package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestEncode(t *testing.T) {
	got := Encode(order.Event{
		Type:          order.EventPaid,
		OrderID:       5,
		UserID:        7,
		Status:        order.StatusPending,
		PaymentMethod: order.PaymentMethodCreditCard,
		PaymentStatus: order.PaymentStatusPaid,
		TotalPrice:    decimal.RequireFromString("290.50"),
		At:            at,
	})
	assert.JSONEq(t, `{
		"type": "order.paid",
		"order_id": 5,
		"user_id": 7,
		"status": "PENDING",
		"payment_method": "CREDIT_CARD",
		"payment_status": "PAID",
		"total_price": "290.5",
		"at": "2026-03-01T12:00:00Z"
	}`, string(got))

	deleted := Encode(order.Event{Type: order.EventDeleted, OrderID: 5, At: at})
	assert.JSONEq(t, `{"type":"order.deleted","order_id":5,"at":"2026-03-01T12:00:00Z"}`, string(deleted))
}

func TestKafka_Run(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafka(w, 8, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	k.Notify(ctx, order.Event{Type: order.EventCreated, OrderID: 1, At: at})
	k.Notify(ctx, order.Event{Type: order.EventStatusChanged, OrderID: 1, At: at})

	require.Eventually(t, func() bool { return w.count() == 2 }, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.True(t, w.closed)
	assert.Equal(t, []byte("1"), w.msgs[0].Key)
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, []byte(order.EventCreated), w.msgs[0].Headers[0].Value)
}

func TestKafka_DrainsOnShutdown(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafka(w, 8, zap.NewNop())

	k.Notify(context.Background(), order.Event{Type: order.EventCreated, OrderID: 1})
	k.Notify(context.Background(), order.Event{Type: order.EventCreated, OrderID: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, k.Run(ctx))
	assert.Equal(t, 2, w.count())
}

func TestKafka_FullQueueDrops(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafka(w, 1, zap.NewNop())

	k.Notify(context.Background(), order.Event{OrderID: 1})
	k.Notify(context.Background(), order.Event{OrderID: 2})

	assert.Len(t, k.events, 1)
}

func TestKafka_WriteErrorIsNotFatal(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	k := NewKafka(w, 4, zap.NewNop())

	k.Notify(context.Background(), order.Event{OrderID: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, k.Run(ctx))
	assert.Zero(t, w.count())
}
