package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Records(t *testing.T) {
	c := NewCollector()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	c.OrderCreated(20 * time.Millisecond)
	c.OrderCreated(30 * time.Millisecond)
	c.OrderFailed(ReasonInsufficientStock)
	c.OrderCancelled()
	c.ReservationFailed()
	c.OutboxPublished(3)
	c.OutboxPublished(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ordersCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.orderFailures.WithLabelValues(ReasonInsufficientStock)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ordersCancelled))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reservationFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.outboxPublished))

	n, err := testutil.GatherAndCount(reg, "storefront_checkout_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.OrderCreated(time.Second)
		c.OrderFailed(ReasonInternal)
		c.OrderCancelled()
		c.ReservationFailed()
		c.OutboxPublished(1)
	})
}
