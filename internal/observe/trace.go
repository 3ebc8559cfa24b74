package observe

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Allakabeth/projet-aclef-pedagogie-sub006"

// Span attributes set by the speech service.
const (
	// AttrAudioBytes is the size of an uploaded recording.
	AttrAudioBytes = attribute.Key("aclef.audio.bytes")
	// AttrAudioType is the recording's declared MIME type.
	AttrAudioType = attribute.Key("aclef.audio.content_type")
	// AttrKeywords counts the vocabulary hints sent to the STT backend.
	AttrKeywords = attribute.Key("aclef.stt.keywords")
	// AttrSTTProvider names the backend that produced the transcript.
	AttrSTTProvider = attribute.Key("aclef.stt.provider")
	// AttrTextRunes is the length of the text read aloud.
	AttrTextRunes = attribute.Key("aclef.tts.text_runes")
	// AttrTTSVoice is the requested voice ID.
	AttrTTSVoice = attribute.Key("aclef.tts.voice")
	// AttrTTSProvider names the backend that produced the audio.
	AttrTTSProvider = attribute.Key("aclef.tts.provider")
)

// StartSpan starts a span on the global tracer provider. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// FailSpan records err on span and marks it failed. A cancelled context
// means the learner went away; the span keeps an unset status.
func FailSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		span.SetAttributes(attribute.Bool("aclef.cancelled", true))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// CorrelationID returns the trace ID of the span in ctx, or "". API error
// bodies echo it so that a learner's report can be matched to logs.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id from ctx.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
