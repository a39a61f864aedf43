// Package telemetry provides api.Observer implementations that export fiber
// activity to Prometheus and OpenTelemetry.
//
// Both observers are safe for concurrent use and can be combined with the
// logging and history observers through api.NewCompositeObserver:
//
//	reg := prometheus.NewRegistry()
//	metrics, err := telemetry.NewMetrics(reg, telemetry.MetricsConfig{EngineID: "orders"})
//	if err != nil {
//		return err
//	}
//	tracing := telemetry.NewTracing(otel.GetTracerProvider(), "orders-service", "orders")
//	obs := api.NewCompositeObserver(metrics, tracing)
package telemetry
