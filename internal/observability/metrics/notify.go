package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Notification channels.
const (
	ChannelMQTT     = "mqtt"
	ChannelShoutrrr = "shoutrrr"
)

// Delivery results.
const (
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
)

// NotifyMetrics tracks terminal job status notifications per channel. All
// methods are safe on a nil receiver so publishers can run unmetered.
type NotifyMetrics struct {
	connected  *prometheus.GaugeVec
	reconnects *prometheus.CounterVec
	messages   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	size       *prometheus.HistogramVec
}

// NewNotifyMetrics creates and registers the notification metrics.
func NewNotifyMetrics(registry *prometheus.Registry) (*NotifyMetrics, error) {
	m := &NotifyMetrics{
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mink_notify_connected",
			Help: "1 while the channel holds a live broker connection",
		}, []string{"channel"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mink_notify_reconnect_attempts_total",
			Help: "Reconnection attempts per channel",
		}, []string{"channel"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mink_notify_messages_total",
			Help: "Job status notifications by channel, job status and result",
		}, []string{"channel", "job_status", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mink_notify_delivery_duration_seconds",
			Help:    "Time spent delivering one job status notification",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		}, []string{"channel"}),
		size: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mink_notify_message_size_bytes",
			Help:    "Size of delivered notification payloads",
			Buckets: prometheus.ExponentialBuckets(BucketStart64B, BucketFactor2, BucketCount10),
		}, []string{"channel"}),
	}
	for _, c := range []prometheus.Collector{m.connected, m.reconnects, m.messages, m.latency, m.size} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register notification metrics: %w", err)
		}
	}
	return m, nil
}

// SetConnected records the connection state of channel.
func (m *NotifyMetrics) SetConnected(channel string, connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.connected.WithLabelValues(channel).Set(v)
}

// IncReconnect counts a reconnection attempt on channel.
func (m *NotifyMetrics) IncReconnect(channel string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(channel).Inc()
}

// ObserveDelivery records one notification for a job in jobStatus. Size is
// only observed for delivered messages.
func (m *NotifyMetrics) ObserveDelivery(channel, jobStatus string, elapsed time.Duration, size int, err error) {
	if m == nil {
		return
	}
	result := ResultDelivered
	if err != nil {
		result = ResultFailed
	}
	m.messages.WithLabelValues(channel, jobStatus, result).Inc()
	m.latency.WithLabelValues(channel).Observe(elapsed.Seconds())
	if err == nil {
		m.size.WithLabelValues(channel).Observe(float64(size))
	}
}
