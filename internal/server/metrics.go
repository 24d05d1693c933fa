package server

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/nbhttp/internal/request"
)

// Metrics holds server runtime metrics
type Metrics struct {
	RequestsTotal     atomic.Int64
	ActiveConnections atomic.Int64
	Errors4xx         atomic.Int64
	Errors5xx         atomic.Int64
	UploadsTotal      atomic.Int64

	// Decode failures by kind
	DecodeTooLarge    atomic.Int64
	DecodeUnsupported atomic.Int64
	DecodeMalformed   atomic.Int64
	DecodeTimeouts    atomic.Int64

	TotalLatencyNs atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRequest records a completed request
func (m *Metrics) RecordRequest(statusCode int, duration time.Duration) {
	m.RequestsTotal.Add(1)
	m.TotalLatencyNs.Add(duration.Nanoseconds())

	switch {
	case statusCode >= 500:
		m.Errors5xx.Add(1)
	case statusCode >= 400:
		m.Errors4xx.Add(1)
	}
}

// RecordDecodeError counts a request rejected before reaching a handler
func (m *Metrics) RecordDecodeError(err error) {
	switch {
	case errors.Is(err, request.ErrContentLengthTooLarge), errors.Is(err, request.ErrHeaderTooLarge):
		m.DecodeTooLarge.Add(1)
	case errors.Is(err, request.ErrUnsupportedMethod):
		m.DecodeUnsupported.Add(1)
	default:
		m.DecodeMalformed.Add(1)
	}
}

func (m *Metrics) AverageLatency() time.Duration {
	totalReqs := m.RequestsTotal.Load()
	if totalReqs == 0 {
		return 0
	}
	return time.Duration(m.TotalLatencyNs.Load() / totalReqs)
}

// MetricsSnapshot is a point-in-time copy of Metrics
type MetricsSnapshot struct {
	RequestsTotal     int64         `json:"requests_total"`
	ActiveConnections int64         `json:"active_connections"`
	InFlightDecoders  int           `json:"in_flight_decoders"`
	Errors4xx         int64         `json:"errors_4xx"`
	Errors5xx         int64         `json:"errors_5xx"`
	UploadsTotal      int64         `json:"uploads_total"`
	DecodeTooLarge    int64         `json:"decode_too_large"`
	DecodeUnsupported int64         `json:"decode_unsupported"`
	DecodeMalformed   int64         `json:"decode_malformed"`
	DecodeTimeouts    int64         `json:"decode_timeouts"`
	AverageLatency    time.Duration `json:"average_latency_ns"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		RequestsTotal:     m.RequestsTotal.Load(),
		ActiveConnections: m.ActiveConnections.Load(),
		Errors4xx:         m.Errors4xx.Load(),
		Errors5xx:         m.Errors5xx.Load(),
		UploadsTotal:      m.UploadsTotal.Load(),
		DecodeTooLarge:    m.DecodeTooLarge.Load(),
		DecodeUnsupported: m.DecodeUnsupported.Load(),
		DecodeMalformed:   m.DecodeMalformed.Load(),
		DecodeTimeouts:    m.DecodeTimeouts.Load(),
		AverageLatency:    m.AverageLatency(),
	}
}
