package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// Order failure reasons.
const (
	ReasonEmptyCart         = "empty_cart"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonProductNotFound   = "product_not_found"
	ReasonInternal          = "internal"
)

// Collector is a prometheus.Collector for the checkout pipeline. A nil
// *Collector is valid and records nothing.
type Collector struct {
	ordersCreated       prometheus.Counter
	orderFailures       *prometheus.CounterVec
	ordersCancelled     prometheus.Counter
	reservationFailures prometheus.Counter
	checkoutDuration    prometheus.Histogram
	outboxPublished     prometheus.Counter
}

func NewCollector() *Collector {
	return &Collector{
		ordersCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_created_total",
				Help:      "The number of orders placed.",
			},
		),
		orderFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_failures_total",
				Help:      "The number of checkouts that did not produce an order.",
			}, []string{"reason"},
		),
		ordersCancelled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_cancelled_total",
				Help:      "The number of orders cancelled and restocked.",
			},
		),
		reservationFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stock_reservation_failures_total",
				Help:      "The number of stock reservations refused.",
			},
		),
		checkoutDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "checkout_duration_seconds",
				Help:      "Time taken to turn a cart into an order.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		outboxPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_published_total",
				Help:      "The number of outbox events delivered to the broker.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.ordersCreated.Describe(ch)
	c.orderFailures.Describe(ch)
	c.ordersCancelled.Describe(ch)
	c.reservationFailures.Describe(ch)
	c.checkoutDuration.Describe(ch)
	c.outboxPublished.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.ordersCreated.Collect(ch)
	c.orderFailures.Collect(ch)
	c.ordersCancelled.Collect(ch)
	c.reservationFailures.Collect(ch)
	c.checkoutDuration.Collect(ch)
	c.outboxPublished.Collect(ch)
}

func (c *Collector) OrderCreated(took time.Duration) {
	if c == nil {
		return
	}
	c.ordersCreated.Inc()
	c.checkoutDuration.Observe(took.Seconds())
}

func (c *Collector) OrderFailed(reason string) {
	if c == nil {
		return
	}
	c.orderFailures.WithLabelValues(reason).Inc()
}

func (c *Collector) OrderCancelled() {
	if c == nil {
		return
	}
	c.ordersCancelled.Inc()
}

func (c *Collector) ReservationFailed() {
	if c == nil {
		return
	}
	c.reservationFailures.Inc()
}

func (c *Collector) OutboxPublished(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.outboxPublished.Add(float64(n))
}
