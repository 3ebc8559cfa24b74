// Package speech runs the dictation flow: a learner's recording is
// transcribed, the transcript is graded against the expected text, and the
// expected text can be read aloud by a TTS voice.
//
// [Service] only orchestrates. Scoring lives in the grading package and every
// backend sits behind the [stt.Provider] and [tts.Provider] interfaces, which
// the application fills with fallback groups and a caching synthesizer.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/grading"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/grading/phonetic"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/observe"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/stt"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts"
)

var (
	// ErrEmptyAudio is returned when a recording carries no bytes.
	ErrEmptyAudio = stt.ErrEmptyAudio

	// ErrNoProvider is returned when the operation needs a backend that was
	// not configured.
	ErrNoProvider = errors.New("speech: no provider configured")
)

// Grading modes, used as the "mode" metric attribute.
const (
	ModePhrase = "phrase"
	ModeWords  = "words"
)

// Option configures a [Service].
type Option func(*Service)

// WithSTT sets the speech-to-text backend.
func WithSTT(p stt.Provider) Option {
	return func(s *Service) { s.stt = p }
}

// WithTTS sets the text-to-speech backend.
func WithTTS(p tts.Provider) Option {
	return func(s *Service) { s.tts = p }
}

// WithPhoneticHints enables sound-alike hints on word grading.
func WithPhoneticHints(m *phonetic.Matcher) Option {
	return func(s *Service) { s.matcher = m }
}

// WithLanguage sets the recognition language passed to STT. Default "fr".
func WithLanguage(lang string) Option {
	return func(s *Service) { s.language = lang }
}

// WithDefaultVoice sets the voice used by [Service.Speak] when the caller
// does not pick one.
func WithDefaultVoice(v tts.VoiceProfile) Option {
	return func(s *Service) { s.defaultVoice = v }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service is safe for concurrent use once constructed.
type Service struct {
	stt          stt.Provider
	tts          tts.Provider
	matcher      *phonetic.Matcher
	language     string
	defaultVoice tts.VoiceProfile
	metrics      *observe.Metrics
}

// New creates a [Service]. Without [WithSTT] only text grading and speech
// synthesis are available; without [WithTTS] only grading is.
func New(opts ...Option) *Service {
	s := &Service{language: "fr"}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// PhraseResult is the outcome of a whole-phrase dictation.
type PhraseResult struct {
	Transcript stt.Transcript
	Grade      grading.PhraseGrade
}

// WordsResult is the outcome of a word-by-word dictation.
type WordsResult struct {
	Transcript stt.Transcript
	Score      grading.PhraseScore

	// Hints lists words that scored below perfect but sound like the
	// expected word. Nil unless phonetic hints are enabled.
	Hints []phonetic.Hint
}

// Transcribe converts a recording to text. The expected words, when given,
// are passed to the backend as vocabulary hints.
func (s *Service) Transcribe(ctx context.Context, audio stt.Audio, expected string) (stt.Transcript, error) {
	if s.stt == nil {
		return stt.Transcript{}, fmt.Errorf("speech: transcribe: %w", ErrNoProvider)
	}
	if len(audio.Data) == 0 {
		return stt.Transcript{}, ErrEmptyAudio
	}

	opts := stt.Options{Language: s.language, Keywords: Keywords(expected)}
	ctx, span := observe.StartSpan(ctx, "speech.Transcribe", trace.WithAttributes(
		observe.AttrAudioBytes.Int(len(audio.Data)),
		observe.AttrAudioType.String(audio.ContentType),
		observe.AttrKeywords.Int(len(opts.Keywords)),
	))
	defer span.End()

	start := time.Now()
	tr, err := s.stt.Transcribe(ctx, audio, opts)
	s.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.FailSpan(span, err)
		return stt.Transcript{}, fmt.Errorf("speech: transcribe: %w", err)
	}
	s.metrics.RecordProviderRequest(ctx, tr.Provider, "stt", "ok")
	span.SetAttributes(observe.AttrSTTProvider.String(tr.Provider))
	observe.Logger(ctx).Debug("transcribed recording",
		"provider", tr.Provider, "chars", len(tr.Text), "confidence", tr.Confidence)
	return tr, nil
}

// GradePhraseRecording transcribes audio and grades it as a whole phrase.
func (s *Service) GradePhraseRecording(ctx context.Context, audio stt.Audio, expected string) (PhraseResult, error) {
	tr, err := s.Transcribe(ctx, audio, expected)
	if err != nil {
		return PhraseResult{}, err
	}
	return PhraseResult{Transcript: tr, Grade: s.GradePhraseText(ctx, expected, tr.Text)}, nil
}

// GradeWordsRecording transcribes audio and aligns it word by word.
func (s *Service) GradeWordsRecording(ctx context.Context, audio stt.Audio, expected string) (WordsResult, error) {
	tr, err := s.Transcribe(ctx, audio, expected)
	if err != nil {
		return WordsResult{}, err
	}
	res := s.GradeWordsText(ctx, expected, tr.Text)
	res.Transcript = tr
	return res, nil
}

// GradePhraseText grades a transcript produced elsewhere, typically by the
// browser's own recogniser.
func (s *Service) GradePhraseText(ctx context.Context, expected, transcribed string) grading.PhraseGrade {
	g := grading.GradePhrase(expected, transcribed)
	outcome := "fail"
	if g.Pass {
		outcome = "pass"
	}
	s.metrics.RecordGrading(ctx, ModePhrase, outcome, g.SimilarityPercent)
	return g
}

// GradeWordsText aligns a transcript produced elsewhere.
func (s *Service) GradeWordsText(ctx context.Context, expected, transcribed string) WordsResult {
	score := grading.GradeWords(expected, transcribed)
	res := WordsResult{Score: score}
	if s.matcher != nil {
		res.Hints = s.matcher.Annotate(score.Words)
	}
	outcome := string(grading.TierFor(float64(score.Percent) / 100))
	s.metrics.RecordGrading(ctx, ModeWords, outcome, score.Percent)
	return res
}

// Speak reads text aloud. A zero voice selects the configured default.
func (s *Service) Speak(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	if s.tts == nil {
		return tts.Audio{}, fmt.Errorf("speech: speak: %w", ErrNoProvider)
	}
	if strings.TrimSpace(text) == "" {
		return tts.Audio{}, tts.ErrEmptyText
	}
	if voice.ID == "" && voice.Provider == "" {
		voice = s.defaultVoice
	}

	ctx, span := observe.StartSpan(ctx, "speech.Speak", trace.WithAttributes(
		observe.AttrTTSVoice.String(voice.ID),
		observe.AttrTextRunes.Int(utf8.RuneCountInString(text)),
	))
	defer span.End()

	start := time.Now()
	audio, err := s.tts.Synthesize(ctx, text, voice)
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.FailSpan(span, err)
		return tts.Audio{}, fmt.Errorf("speech: speak: %w", err)
	}
	s.metrics.RecordProviderRequest(ctx, audio.Provider, "tts", "ok")
	span.SetAttributes(observe.AttrTTSProvider.String(audio.Provider))
	return audio, nil
}

// Voices lists the voices offered by the configured TTS backends.
func (s *Service) Voices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if s.tts == nil {
		return nil, fmt.Errorf("speech: voices: %w", ErrNoProvider)
	}
	voices, err := s.tts.ListVoices(ctx)
	if err != nil {
		slog.Warn("speech: list voices failed", "err", err)
		return nil, fmt.Errorf("speech: voices: %w", err)
	}
	return voices, nil
}

// Keywords extracts recognition hints from the expected text: its words with
// surrounding punctuation removed, case and accents kept, duplicates dropped.
func Keywords(expected string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, f := range strings.Fields(expected) {
		w := strings.TrimFunc(f, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })
		if w == "" {
			continue
		}
		k := strings.ToLower(w)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, w)
	}
	return out
}
