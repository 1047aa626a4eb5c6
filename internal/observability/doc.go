// Package observability builds the service logger, the Prometheus
// collectors for the retrieval pipeline, and the OpenTelemetry tracer.
//
// Every constructor returns a value that is injected into services; nothing
// here is read through package globals except the OTel global provider.
package observability
