// Package otel adapts engine metrics to OpenTelemetry observable instruments.
package otel
