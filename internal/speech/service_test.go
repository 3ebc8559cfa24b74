package speech_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/grading"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/grading/phonetic"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/observe"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/speech"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/stt"
	sttmock "github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/stt/mock"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts"
	ttsmock "github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts/mock"
)

var recording = stt.Audio{Data: []byte("webm-bytes"), ContentType: "audio/webm"}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// recordSpans routes the global tracer to an in-memory exporter for the test.
func recordSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func spanNamed(t *testing.T, exp *tracetest.InMemoryExporter, name string) tracetest.SpanStub {
	t.Helper()
	for _, s := range exp.GetSpans() {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no %q span recorded", name)
	return tracetest.SpanStub{}
}

func spanAttrs(s tracetest.SpanStub) map[attribute.Key]string {
	out := make(map[attribute.Key]string, len(s.Attributes))
	for _, kv := range s.Attributes {
		out[kv.Key] = kv.Value.Emit()
	}
	return out
}

func TestGradePhraseRecording(t *testing.T) {
	t.Parallel()

	recognizer := &sttmock.Provider{Result: stt.Transcript{Text: "Le chat dort", Provider: "whisper"}}
	svc := speech.New(speech.WithSTT(recognizer), speech.WithMetrics(testMetrics(t)))

	res, err := svc.GradePhraseRecording(context.Background(), recording, "Le chat dort.")
	if err != nil {
		t.Fatalf("GradePhraseRecording: %v", err)
	}
	if !res.Grade.Pass || res.Grade.SimilarityPercent != 100 {
		t.Errorf("grade = %+v, want pass at 100%%", res.Grade)
	}
	if res.Transcript.Provider != "whisper" {
		t.Errorf("provider = %q", res.Transcript.Provider)
	}

	call := recognizer.Calls[0]
	if call.Opts.Language != "fr" {
		t.Errorf("language = %q, want fr", call.Opts.Language)
	}
	if diff := cmp.Diff([]string{"Le", "chat", "dort"}, call.Opts.Keywords); diff != "" {
		t.Errorf("keywords mismatch (-want +got):\n%s", diff)
	}
}

func TestGradeWordsRecording_WithHints(t *testing.T) {
	t.Parallel()

	recognizer := &sttmock.Provider{Result: stt.Transcript{Text: "la mère est calme"}}
	svc := speech.New(
		speech.WithSTT(recognizer),
		speech.WithPhoneticHints(phonetic.New()),
		speech.WithLanguage("fr-FR"),
		speech.WithMetrics(testMetrics(t)),
	)

	res, err := svc.GradeWordsRecording(context.Background(), recording, "la mer est calme")
	if err != nil {
		t.Fatalf("GradeWordsRecording: %v", err)
	}
	if len(res.Score.Words) != 4 {
		t.Fatalf("words = %d, want 4", len(res.Score.Words))
	}
	if res.Score.Words[1].Tier == grading.TierPerfect {
		t.Errorf("mer/mère graded perfect: %+v", res.Score.Words[1])
	}
	if len(res.Hints) != 1 || res.Hints[0].Index != 1 {
		t.Errorf("hints = %+v, want one hint on word 1", res.Hints)
	}
	if res.Transcript.Text != "la mère est calme" {
		t.Errorf("transcript = %q", res.Transcript.Text)
	}
	if recognizer.Calls[0].Opts.Language != "fr-FR" {
		t.Errorf("language = %q", recognizer.Calls[0].Opts.Language)
	}
}

func TestGradeWordsText_NoHintsWithoutMatcher(t *testing.T) {
	t.Parallel()

	svc := speech.New(speech.WithMetrics(testMetrics(t)))
	res := svc.GradeWordsText(context.Background(), "la mer est calme", "la mère est calme")
	if res.Hints != nil {
		t.Errorf("hints = %+v, want nil", res.Hints)
	}
	if want := grading.GradeWords("la mer est calme", "la mère est calme"); !cmp.Equal(want, res.Score) {
		t.Errorf("score differs from grading.GradeWords: %s", cmp.Diff(want, res.Score))
	}
}

func TestGradePhraseText_MatchesGrader(t *testing.T) {
	t.Parallel()

	svc := speech.New(speech.WithMetrics(testMetrics(t)))
	tests := [][2]string{
		{"Le chat dort.", "le chat dort"},
		{"bonjour", "au revoir"},
		{"", ""},
	}
	for _, tt := range tests {
		got := svc.GradePhraseText(context.Background(), tt[0], tt[1])
		if want := grading.GradePhrase(tt[0], tt[1]); got != want {
			t.Errorf("GradePhraseText(%q, %q) = %+v, want %+v", tt[0], tt[1], got, want)
		}
	}
}

func TestTranscribe_Errors(t *testing.T) {
	t.Parallel()

	backendErr := errors.New("all providers down")
	tests := []struct {
		name    string
		svc     *speech.Service
		audio   stt.Audio
		wantErr error
	}{
		{"no provider", speech.New(speech.WithMetrics(testMetrics(t))), recording, speech.ErrNoProvider},
		{"empty audio", speech.New(speech.WithSTT(&sttmock.Provider{}), speech.WithMetrics(testMetrics(t))), stt.Audio{}, speech.ErrEmptyAudio},
		{"backend error", speech.New(speech.WithSTT(&sttmock.Provider{Err: backendErr}), speech.WithMetrics(testMetrics(t))), recording, backendErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := tt.svc.GradePhraseRecording(context.Background(), tt.audio, "chat"); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTranscribe_SpanAttributes(t *testing.T) {
	exp := recordSpans(t)

	recognizer := &sttmock.Provider{Result: stt.Transcript{Text: "le chat dort", Provider: "deepgram"}}
	svc := speech.New(speech.WithSTT(recognizer), speech.WithMetrics(testMetrics(t)))
	if _, err := svc.Transcribe(context.Background(), recording, "Le chat dort, le chat."); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	want := map[attribute.Key]string{
		observe.AttrAudioBytes:  "10",
		observe.AttrAudioType:   "audio/webm",
		observe.AttrKeywords:    "3",
		observe.AttrSTTProvider: "deepgram",
	}
	if diff := cmp.Diff(want, spanAttrs(spanNamed(t, exp, "speech.Transcribe"))); diff != "" {
		t.Errorf("span attributes mismatch (-want +got):\n%s", diff)
	}
}

func TestTranscribe_SpanStatus(t *testing.T) {
	exp := recordSpans(t)
	m := testMetrics(t)

	failing := speech.New(speech.WithSTT(&sttmock.Provider{Err: errors.New("whisper: 503")}), speech.WithMetrics(m))
	if _, err := failing.Transcribe(context.Background(), recording, "chat"); err == nil {
		t.Fatal("expected error")
	}
	if got := spanNamed(t, exp, "speech.Transcribe").Status.Code; got != codes.Error {
		t.Errorf("failed transcription status = %v, want Error", got)
	}
	exp.Reset()

	cancelled := speech.New(speech.WithSTT(&sttmock.Provider{Err: context.Canceled}), speech.WithMetrics(m))
	if _, err := cancelled.Transcribe(context.Background(), recording, "chat"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := spanNamed(t, exp, "speech.Transcribe").Status.Code; got != codes.Unset {
		t.Errorf("cancelled transcription status = %v, want Unset", got)
	}
}

func TestSpeak_SpanAttributes(t *testing.T) {
	exp := recordSpans(t)

	backend := &ttsmock.Provider{SynthesizeResult: tts.Audio{Data: []byte("mp3"), Provider: "coqui"}}
	svc := speech.New(speech.WithTTS(backend), speech.WithMetrics(testMetrics(t)))
	if _, err := svc.Speak(context.Background(), "Élève", tts.VoiceProfile{ID: "lea"}); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	want := map[attribute.Key]string{
		observe.AttrTTSVoice:    "lea",
		observe.AttrTextRunes:   "5",
		observe.AttrTTSProvider: "coqui",
	}
	if diff := cmp.Diff(want, spanAttrs(spanNamed(t, exp, "speech.Speak"))); diff != "" {
		t.Errorf("span attributes mismatch (-want +got):\n%s", diff)
	}
}

func TestSpeak_DefaultVoice(t *testing.T) {
	t.Parallel()

	backend := &ttsmock.Provider{SynthesizeResult: tts.Audio{Data: []byte("mp3"), ContentType: "audio/mpeg", Provider: "elevenlabs"}}
	def := tts.VoiceProfile{ID: "lea", Provider: "elevenlabs"}
	svc := speech.New(speech.WithTTS(backend), speech.WithDefaultVoice(def), speech.WithMetrics(testMetrics(t)))

	audio, err := svc.Speak(context.Background(), "Le chat dort.", tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if audio.ContentType != "audio/mpeg" {
		t.Errorf("content type = %q", audio.ContentType)
	}
	if diff := cmp.Diff(def, backend.SynthesizeCalls[0].Voice); diff != "" {
		t.Errorf("default voice not used (-want +got):\n%s", diff)
	}

	chosen := tts.VoiceProfile{ID: "alloy", Provider: "openai"}
	if _, err := svc.Speak(context.Background(), "bonjour", chosen); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if diff := cmp.Diff(chosen, backend.SynthesizeCalls[1].Voice); diff != "" {
		t.Errorf("chosen voice not used (-want +got):\n%s", diff)
	}
}

func TestSpeak_Errors(t *testing.T) {
	t.Parallel()

	m := testMetrics(t)
	if _, err := speech.New(speech.WithMetrics(m)).Speak(context.Background(), "chat", tts.VoiceProfile{}); !errors.Is(err, speech.ErrNoProvider) {
		t.Errorf("no provider: err = %v", err)
	}

	backend := &ttsmock.Provider{}
	svc := speech.New(speech.WithTTS(backend), speech.WithMetrics(m))
	if _, err := svc.Speak(context.Background(), "  ", tts.VoiceProfile{}); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("blank text: err = %v", err)
	}
	if backend.CallCount() != 0 {
		t.Error("backend called for blank text")
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()

	want := []tts.VoiceProfile{{ID: "lea", Provider: "elevenlabs"}}
	svc := speech.New(speech.WithTTS(&ttsmock.Provider{ListVoicesResult: want}), speech.WithMetrics(testMetrics(t)))

	got, err := svc.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("voices mismatch (-want +got):\n%s", diff)
	}

	if _, err := speech.New(speech.WithMetrics(testMetrics(t))).Voices(context.Background()); !errors.Is(err, speech.ErrNoProvider) {
		t.Errorf("err = %v, want ErrNoProvider", err)
	}
}

func TestKeywords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"Le chat dort.", []string{"Le", "chat", "dort"}},
		{"« Bonjour ! » bonjour", []string{"Bonjour"}},
		{"l'élève, l'école", []string{"l'élève", "l'école"}},
		{"   ", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, speech.Keywords(tt.in)); diff != "" {
			t.Errorf("Keywords(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
