// Package publisher announces order lifecycle changes to downstream services.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
)

const (
	DefaultTopic = "storefront.orders"

	EventOrderConfirmed = "order.confirmed"
	EventOrderFailed    = "order.failed"
)

// OrderEvent is the message body. It carries an order summary and never
// any payment secret.
type OrderEvent struct {
	EventType        string             `json:"event_type"`
	OrderID          string             `json:"order_id"`
	OrderNumber      string             `json:"order_number"`
	PaymentReference string             `json:"payment_reference"`
	Status           domain.OrderStatus `json:"status"`
	CustomerEmail    string             `json:"customer_email,omitempty"`
	ItemCount        int                `json:"item_count"`
	Total            int64              `json:"total"`
	Currency         string             `json:"currency"`
	OccurredAt       time.Time          `json:"occurred_at"`
}

func newOrderEvent(eventType string, o *domain.Order, now time.Time) OrderEvent {
	count := 0
	for _, l := range o.Items {
		count += l.Quantity
	}
	return OrderEvent{
		EventType:        eventType,
		OrderID:          o.ID,
		OrderNumber:      o.OrderNumber,
		PaymentReference: o.PaymentReference,
		Status:           o.Status,
		CustomerEmail:    o.Customer.Email,
		ItemCount:        count,
		Total:            o.Totals.Total,
		Currency:         o.Currency,
		OccurredAt:       now,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per order event, keyed by order id so
// all events for an order land on the same partition.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, logger)
}

func newKafkaPublisher(w messageWriter, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{
		writer:  w,
		timeout: 5 * time.Second,
		logger:  logger.With("component", "publisher"),
		now:     time.Now,
	}
}

func (p *KafkaPublisher) OrderConfirmed(ctx context.Context, o *domain.Order) error {
	return p.publish(ctx, EventOrderConfirmed, o)
}

func (p *KafkaPublisher) OrderFailed(ctx context.Context, o *domain.Order) error {
	return p.publish(ctx, EventOrderFailed, o)
}

func (p *KafkaPublisher) publish(ctx context.Context, eventType string, o *domain.Order) error {
	now := p.now().UTC()
	data, err := json.Marshal(newOrderEvent(eventType, o, now))
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(o.ID),
		Value: data,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for order %s: %w", eventType, o.ID, err)
	}
	p.logger.Debug("order event published", "event_type", eventType, "order_id", o.ID)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher logs events instead of publishing them. Used when no
// brokers are configured.
type NoopPublisher struct {
	Logger *slog.Logger
}

func (n NoopPublisher) OrderConfirmed(_ context.Context, o *domain.Order) error {
	n.log(EventOrderConfirmed, o)
	return nil
}

func (n NoopPublisher) OrderFailed(_ context.Context, o *domain.Order) error {
	n.log(EventOrderFailed, o)
	return nil
}

func (n NoopPublisher) Close() error {
	return nil
}

func (n NoopPublisher) log(eventType string, o *domain.Order) {
	if n.Logger != nil {
		n.Logger.Debug("order event not published, no brokers configured", "event_type", eventType, "order_id", o.ID)
	}
}
