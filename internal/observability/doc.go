// Package observability provides logging, metrics, and context support for
// the citation discovery service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for resolutions, discoveries, providers and cache
//   - Context helpers for propagating request identifiers
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	crossrefLogger := observability.ForSource(logger, "crossref")
//
// Handlers store the request ID and operation in the request context;
// FromContext copies them onto any logger:
//
//	ctx = observability.WithOperation(ctx, observability.OperationResolve)
//	log := observability.FromContext(ctx, logger)
//	log.Warn().Msg("provider query failed")
//
// # Metrics
//
// Metrics doubles as the telemetry sink of the resolver, the provider cache
// and the provider HTTP clients:
//
//	metrics := observability.NewMetrics("citation_discovery")
//	orch := resolver.New(registry, resolver.WithRecorder(metrics))
//
// # Standard Fields
//
//   - request_id: API request identifier
//   - operation: resolve, resolve_single, discover or listing
//   - source: provider tag (crossref, openalex, ...)
//   - tier: resolution tier (id, title_author, title, author_year)
//   - topic: discovery topic
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
