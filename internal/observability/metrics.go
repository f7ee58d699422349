package observability

import (
	"context"
	"sync"

	"issuetracker/internal/config"
	contextutils "issuetracker/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes OpenTelemetry metrics
func InitMetrics(cfg *config.OpenTelemetryConfig) (result0 *metric.MeterProvider, err error) {
	ctx := context.Background()

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var exporter metric.Exporter
	switch cfg.Protocol {
	case "grpc", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithHeaders(cfg.Headers)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to create otlp grpc metric exporter")
		}
	case "http":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithHeaders(cfg.Headers)}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to create otlp http metric exporter")
		}
	default:
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "unsupported otel protocol: %s", cfg.Protocol)
	}

	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter)),
		metric.WithResource(res),
	), nil
}

// domain counters, created lazily on the global meter
var (
	countersOnce         sync.Once
	issuesCreated        otelmetric.Int64Counter
	issueTransitions     otelmetric.Int64Counter
	notificationsEmitted otelmetric.Int64Counter
	attachmentsRejected  otelmetric.Int64Counter
)

func initCounters() {
	meter := otel.Meter("issuetracker")
	issuesCreated, _ = meter.Int64Counter("issuetracker.issues.created",
		otelmetric.WithDescription("Issues reported"))
	issueTransitions, _ = meter.Int64Counter("issuetracker.issues.transitions",
		otelmetric.WithDescription("Observed issue status changes"))
	notificationsEmitted, _ = meter.Int64Counter("issuetracker.notifications.emitted",
		otelmetric.WithDescription("Notification rows written"))
	attachmentsRejected, _ = meter.Int64Counter("issuetracker.attachments.rejected",
		otelmetric.WithDescription("Uploads refused by the attachment policy"))
}

func counters() {
	countersOnce.Do(initCounters)
}

// RecordIssueCreated counts a new issue
func RecordIssueCreated(ctx context.Context, category string) {
	counters()
	if issuesCreated != nil {
		issuesCreated.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("category", category)))
	}
}

// RecordTransition counts a status change
func RecordTransition(ctx context.Context, toStatus string) {
	counters()
	if issueTransitions != nil {
		issueTransitions.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("to_status", toStatus)))
	}
}

// RecordNotification counts written notifications of one type
func RecordNotification(ctx context.Context, notificationType string, n int) {
	counters()
	if notificationsEmitted != nil && n > 0 {
		notificationsEmitted.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("type", notificationType)))
	}
}

// RecordAttachmentRejected counts a refused upload
func RecordAttachmentRejected(ctx context.Context, reason string) {
	counters()
	if attachmentsRejected != nil {
		attachmentsRejected.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("reason", reason)))
	}
}
