package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const orderCreatedEventType = "order.created"

// orderCreatedEvent is the subset of the order.created payload this consumer
// needs.
type orderCreatedEvent struct {
	OrderID     string `json:"order_id"`
	OwnerID     string `json:"owner_id"`
	CartVersion int64  `json:"cart_version"`
}

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type CartClearer interface {
	ClearIfUnchanged(ctx context.Context, ownerID string, version int64) error
}

// CartClearConsumer finishes checkout's cart clear when the synchronous clear
// did not happen. The cart is emptied only if it is still at the version that
// was checked out.
type CartClearConsumer struct {
	carts  CartClearer
	reader MessageReader
	log    logrus.FieldLogger
}

func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewCartClearConsumer(carts CartClearer, reader MessageReader, log logrus.FieldLogger) *CartClearConsumer {
	return &CartClearConsumer{
		carts:  carts,
		reader: reader,
		log:    log.WithField("component", "cart_clear_consumer"),
	}
}

func (c *CartClearConsumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *CartClearConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.WithError(err).Warn("error closing kafka reader")
	}
}

func (c *CartClearConsumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		c.log.WithError(err).Error("error reading message")
		return
	}

	if eventType(m) != orderCreatedEventType {
		return
	}

	var event orderCreatedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.log.WithError(err).WithField("offset", m.Offset).Error("error parsing message")
		return
	}
	if event.OwnerID == "" {
		c.log.WithField("order_id", event.OrderID).Warn("order.created without owner, skipping")
		return
	}

	log := c.log.WithFields(logrus.Fields{
		"order_id": event.OrderID,
		"owner_id": event.OwnerID,
	})

	err = c.carts.ClearIfUnchanged(ctx, event.OwnerID, event.CartVersion)
	switch {
	case err == nil:
		log.Debug("cart cleared after checkout")
	case errors.Is(err, cart.ErrCartChanged):
		// already cleared, or the owner kept shopping
		log.Debug("cart changed since checkout, leaving it")
	default:
		log.WithError(err).Error("failed to clear cart after checkout")
	}
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
