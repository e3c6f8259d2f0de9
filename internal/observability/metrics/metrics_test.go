package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event_type", "message.created"),
		attribute.String("workspace_id", "456"),
		attribute.String("credential_kind", "workspace_token"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "workspace_id" {
			t.Fatalf("expected workspace_id to be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordMessageIngested(context.Background(), "api")
	m.RecordWebhookDelivery(context.Background(), "message.created", "failed")
	m.RecordBestEffortFailure(context.Background(), "realtime.publish")
}

func TestNewRegistersInstrumentsOnNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "workspace"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.RecordRealtimePublish(context.Background(), "message.created", nil)
	m.RecordRateLimitDenied(context.Background(), "workspace_token", "/v1/messages", "quota_exhausted")
}
