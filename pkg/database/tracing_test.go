package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

const (
	recordAttemptSQL = "INSERT INTO payment_attempts (order_id, attempt, outcome) VALUES ($1, $2, $3)"
	listAttemptsSQL  = "SELECT attempt, outcome FROM payment_attempts WHERE order_id = $1 ORDER BY attempt"
)

func spanRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

// slowLog enables slow query logging into a buffer for the duration of t.
func slowLog(t *testing.T, threshold time.Duration) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetSlowQueryLogging(threshold, slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })
	return &buf
}

func attrMap(kvs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

// ============================================================================
// TraceQuery spans
// ============================================================================

func TestTraceQuery_AttemptJournalSpans(t *testing.T) {
	exporter := spanRecorder(t)

	_, end := TraceQuery(context.Background(), "RecordAttempt", recordAttemptSQL)
	end(nil)
	_, end = TraceQuery(context.Background(), "ListAttempts", listAttemptsSQL)
	end(nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	for i, want := range []struct{ op, stmt string }{
		{"RecordAttempt", recordAttemptSQL},
		{"ListAttempts", listAttemptsSQL},
	} {
		s := spans[i]
		assert.Equal(t, "db."+want.op, s.Name)
		assert.Equal(t, trace.SpanKindClient, s.SpanKind)
		assert.Equal(t, codes.Unset, s.Status.Code)
		assert.Equal(t, map[string]string{
			"db.system":    "postgresql",
			"db.operation": want.op,
			"db.statement": want.stmt,
		}, attrMap(s.Attributes))
	}
}

func TestTraceQuery_FailedInsertMarksSpan(t *testing.T) {
	exporter := spanRecorder(t)

	_, end := TraceQuery(context.Background(), "RecordAttempt", recordAttemptSQL)
	end(errors.New(`relation "payment_attempts" does not exist`))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Contains(t, spans[0].Status.Description, "payment_attempts")
	require.NotEmpty(t, spans[0].Events)
	assert.Equal(t, "exception", spans[0].Events[0].Name)
}

func TestTraceQuery_NestsUnderCheckoutSpan(t *testing.T) {
	exporter := spanRecorder(t)

	ctx, checkout := otel.Tracer("portal").Start(context.Background(), "checkout.Initialize")
	qctx, end := TraceQuery(ctx, "RecordAttempt", recordAttemptSQL)
	end(nil)
	checkout.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "db.RecordAttempt", spans[0].Name)
	assert.Equal(t, checkout.SpanContext().SpanID(), spans[0].Parent.SpanID())
	assert.Equal(t, checkout.SpanContext().TraceID(), trace.SpanContextFromContext(qctx).TraceID())
}

// ============================================================================
// Slow query logging
// ============================================================================

func TestSlowQueryLogging_WarnsWithStatementAndError(t *testing.T) {
	spanRecorder(t)
	buf := slowLog(t, time.Nanosecond)

	_, end := TraceQuery(context.Background(), "RecordAttempt", recordAttemptSQL)
	end(errors.New("deadlock detected"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "slow query detected", entry["msg"])
	assert.Equal(t, "RecordAttempt", entry["operation"])
	assert.Equal(t, recordAttemptSQL, entry["statement"])
	assert.Equal(t, "deadlock detected", entry["error"])
	assert.Contains(t, entry, "duration")
}

func TestSlowQueryLogging_SuccessHasNoErrorField(t *testing.T) {
	spanRecorder(t)
	buf := slowLog(t, time.Nanosecond)

	_, end := TraceQuery(context.Background(), "ListAttempts", listAttemptsSQL)
	end(nil)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "error")
}

func TestSlowQueryLogging_Thresholds(t *testing.T) {
	spanRecorder(t)

	t.Run("below threshold", func(t *testing.T) {
		buf := slowLog(t, time.Hour)
		_, end := TraceQuery(context.Background(), "ListAttempts", listAttemptsSQL)
		end(nil)
		assert.Zero(t, buf.Len())
	})

	t.Run("disabled", func(t *testing.T) {
		SetSlowQueryLogging(0, nil)
		_, end := TraceQuery(context.Background(), "ListAttempts", listAttemptsSQL)
		assert.NotPanics(t, func() { end(nil) })
	})

	t.Run("threshold without logger", func(t *testing.T) {
		SetSlowQueryLogging(time.Nanosecond, nil)
		t.Cleanup(func() { SetSlowQueryLogging(0, nil) })
		_, end := TraceQuery(context.Background(), "ListAttempts", listAttemptsSQL)
		assert.NotPanics(t, func() { end(nil) })
	})
}

func TestSetSlowQueryLogging_ConcurrentWithQueries(t *testing.T) {
	spanRecorder(t)
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			SetSlowQueryLogging(time.Duration(i)*time.Hour, logger)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, end := TraceQuery(context.Background(), "ListAttempts", listAttemptsSQL)
			end(nil)
		}
	}()
	wg.Wait()
}
