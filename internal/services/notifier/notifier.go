// Package notifier обрабатывает события отправлений из Kafka:
// пишет уведомление о доставке и ведёт счётчики для /stats.
package notifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ShipTrack/internal/broker/messages"
	"github.com/BearBump/ShipTrack/internal/metrics"
)

type Notifier struct {
	startedAtUnixNano int64

	lastEventUnixNano atomic.Int64
	totalReceived     atomic.Int64
	totalRegistered   atomic.Int64
	totalDelivered    atomic.Int64
	totalSkipped      atomic.Int64
	totalMalformed    atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New() *Notifier {
	return &Notifier{startedAtUnixNano: time.Now().UTC().UnixNano()}
}

// Handle никогда не возвращает ошибку на битом сообщении: иначе
// консьюмер встанет на нём навсегда. Такие сообщения считаются и пропускаются.
func (n *Notifier) Handle(ctx context.Context, key, value []byte) error {
	n.totalReceived.Add(1)
	n.lastEventUnixNano.Store(time.Now().UTC().UnixNano())

	var ev messages.ShipmentEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		n.totalMalformed.Add(1)
		n.setLastError(err.Error())
		slog.Warn("malformed shipment event", "key", string(key), "error", err.Error())
		return nil
	}

	switch ev.Type {
	case messages.ShipmentEventUpserted:
		n.totalRegistered.Add(1)
		slog.Info("shipment registered",
			"code", ev.Code,
			"recipient", ev.Name,
			"email", ev.Email,
			"status", ev.Status,
		)
	case messages.ShipmentEventDelivered:
		n.totalDelivered.Add(1)
		slog.Info("delivery notification",
			"code", ev.Code,
			"recipient", ev.Name,
			"email", ev.Email,
			"destination", ev.PostalCode,
			"delivered_at", ev.OccurredAt,
		)
	default:
		n.totalSkipped.Add(1)
		slog.Debug("skip shipment event", "type", ev.Type, "code", ev.Code)
		return nil
	}
	metrics.NotificationsHandled.WithLabelValues(ev.Type).Inc()
	return nil
}

type Stats struct {
	StartedAt       time.Time  `json:"startedAt"`
	LastEventAt     *time.Time `json:"lastEventAt,omitempty"`
	TotalReceived   int64      `json:"totalReceived"`
	TotalRegistered int64      `json:"totalRegistered"`
	TotalDelivered  int64      `json:"totalDelivered"`
	TotalSkipped    int64      `json:"totalSkipped"`
	TotalMalformed  int64      `json:"totalMalformed"`
	LastError       string     `json:"lastError,omitempty"`
}

func (n *Notifier) Stats() Stats {
	st := Stats{
		StartedAt:       time.Unix(0, n.startedAtUnixNano).UTC(),
		TotalReceived:   n.totalReceived.Load(),
		TotalRegistered: n.totalRegistered.Load(),
		TotalDelivered:  n.totalDelivered.Load(),
		TotalSkipped:    n.totalSkipped.Load(),
		TotalMalformed:  n.totalMalformed.Load(),
	}
	if ts := n.lastEventUnixNano.Load(); ts > 0 {
		t := time.Unix(0, ts).UTC()
		st.LastEventAt = &t
	}
	n.lastErrorMu.Lock()
	st.LastError = n.lastError
	n.lastErrorMu.Unlock()
	return st
}

func (n *Notifier) setLastError(msg string) {
	n.lastErrorMu.Lock()
	n.lastError = msg
	n.lastErrorMu.Unlock()
}
