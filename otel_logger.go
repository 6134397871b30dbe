package main

import (
	"context"
	"strconv"
	"time"

	otellog "go.opentelemetry.io/otel/log"
)

// OTelLogSubscriber sends domain events as structured OTel log records.
type OTelLogSubscriber struct {
	logger otellog.Logger
}

func (s *OTelLogSubscriber) OnLogEvent(event Event) {
	attrs := []otellog.KeyValue{
		otellog.String("players", event.Session.Players()),
	}
	if event.Player != "" {
		attrs = append(attrs, otellog.String("player", event.Player))
	}
	if event.PlayerID != "" {
		attrs = append(attrs, otellog.String("player_id", event.PlayerID))
	}
	if event.WorldName != "" {
		attrs = append(attrs, otellog.String("world", event.WorldName))
	}
	if event.WorldID != "" {
		attrs = append(attrs, otellog.String("world_id", event.WorldID))
	}
	if event.Kind == KindPlayerCapDiscovered {
		attrs = append(attrs, otellog.String("cap", strconv.Itoa(event.Cap)))
	}

	logEvent(s.logger, event.Time, string(event.Kind), attrs...)
}

func logEvent(logger otellog.Logger, at time.Time, event string, attrs ...otellog.KeyValue) {
	var r otellog.Record
	r.SetTimestamp(at)
	r.SetObservedTimestamp(time.Now())
	r.SetSeverity(otellog.SeverityInfo)
	r.SetBody(otellog.StringValue(event))
	r.AddAttributes(attrs...)
	logger.Emit(context.Background(), r)
}
