package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"SignalPipeline/internal/domain"
	"SignalPipeline/internal/ports"
)

// NATSNotifier publishes finalized day summaries on the event bus so that
// downstream consumers (alerting, dashboards) react without polling the store.
type NATSNotifier struct {
	conn        *nats.Conn
	subjectRoot string
}

var _ ports.Notifier = (*NATSNotifier)(nil)

// NewNATSNotifier wires an established NATS connection with a subject root,
// e.g. "signals" publishes to "signals.<team>.day".
func NewNATSNotifier(conn *nats.Conn, subjectRoot string) *NATSNotifier {
	if subjectRoot == "" {
		subjectRoot = "signals"
	}
	return &NATSNotifier{conn: conn, subjectRoot: subjectRoot}
}

type daySignalEvent struct {
	TeamKey string       `json:"team_key"`
	Day     string       `json:"day"`
	Signals []signalItem `json:"signals"`
}

type signalItem struct {
	Keyword   string  `json:"keyword"`
	Composite float64 `json:"composite"`
	Frequency int     `json:"frequency"`
	Sentiment float64 `json:"sentiment"`
	Trend     string  `json:"trend"`
}

// PublishDaySignals emits one event per finalized team/day.
func (n *NATSNotifier) PublishDaySignals(_ context.Context, summary domain.DaySummary) error {
	if n.conn == nil {
		return nil
	}

	event := daySignalEvent{
		TeamKey: summary.TeamKey,
		Day:     string(summary.Day),
		Signals: make([]signalItem, 0, len(summary.Signals)),
	}
	for _, sig := range summary.Signals {
		event.Signals = append(event.Signals, signalItem{
			Keyword:   sig.Keyword,
			Composite: sig.Composite,
			Frequency: sig.Frequency,
			Sentiment: sig.SentimentScore,
			Trend:     string(sig.Trend),
		})
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal day signals: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.day", n.subjectRoot, summary.TeamKey)
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
