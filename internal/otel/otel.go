//go:build !no_otel

package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Tenant tags the span with the tenant it serves.
func Tenant(span trace.Span, tenant string) {
	span.SetAttributes(attribute.String("idp.tenant", tenant))
}

// Fail records err on the span and marks it failed. A nil err is ignored.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
