package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

type testLogger struct{ t *testing.T }

func (l testLogger) Warn(msg string, fields map[string]interface{}) { l.t.Logf("WARN: %s %v", msg, fields) }

func TestNoop_SpansAndRecords(t *testing.T) {
	o := NewNoop("test")

	ctx, span := o.StartSpan(context.Background(), "disambiguate", attribute.String("query", "Jaguar"))
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() {
		EndSpan(span, errors.New("upstream failed"))
		o.RecordOperation(ctx, "disambiguate", "error", 10*time.Millisecond)
		o.Shutdown()
	})
}

func TestNew_TracingInProcess(t *testing.T) {
	o := New(Options{ServiceName: "relay-test", TracingEnabled: true}, testLogger{t})
	defer o.Shutdown()

	_, span := o.StartSpan(context.Background(), "streamArticle")
	assert.True(t, span.SpanContext().IsValid())
	EndSpan(span, nil)

	assert.NotPanics(t, func() {
		o.RecordOperation(context.Background(), "streamArticle", "ok", time.Second)
	})
}
