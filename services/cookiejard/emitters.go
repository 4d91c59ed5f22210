package cookiejard

import (
	"log/slog"

	"cookiejar/core/events"
	"cookiejar/observability"
	"cookiejar/observability/logging"
)

// logEmitter writes every event as a structured log line. Attributes pass
// through the redaction allowlist.
type logEmitter struct {
	logger *slog.Logger
}

func (e logEmitter) Emit(evt events.Event) {
	if e.logger == nil || evt == nil {
		return
	}
	rendered := evt.Event()
	if rendered == nil {
		return
	}
	attrs := make([]any, 0, len(rendered.Attributes)+1)
	attrs = append(attrs, slog.String("type", rendered.Type))
	for _, key := range rendered.Keys() {
		attrs = append(attrs, logging.MaskField(key, rendered.Attributes[key]))
	}
	e.logger.Info("jar event", attrs...)
}

// metricsEmitter counts events by type.
type metricsEmitter struct{}

func (metricsEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	observability.Events().RecordEvent(evt.EventType())
}
