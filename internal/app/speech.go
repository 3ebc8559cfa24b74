package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/api"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/config"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/grading"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/grading/phonetic"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/observe"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/speech"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/stt"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts"
)

// serviceDeps are the long-lived collaborators shared by every rebuild of
// the speech service.
type serviceDeps struct {
	stt     stt.Provider
	tts     tts.Provider
	metrics *observe.Metrics
}

// liveSpeech serves requests from the current [speech.Service] and swaps in a
// rebuilt one when the speech settings are hot-reloaded. In-flight requests
// finish on the service they started with.
type liveSpeech struct {
	deps serviceDeps

	mu  sync.Mutex // serialises reloads
	cfg config.SpeechConfig
	svc atomic.Pointer[speech.Service]
}

var _ api.Speech = (*liveSpeech)(nil)

func newLiveSpeech(deps serviceDeps, sc config.SpeechConfig) *liveSpeech {
	l := &liveSpeech{deps: deps}
	l.reload(sc)
	return l
}

func (l *liveSpeech) settings() config.SpeechConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

func (l *liveSpeech) reload(sc config.SpeechConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()

	opts := []speech.Option{
		speech.WithDefaultVoice(sc.DefaultVoice.Profile()),
		speech.WithMetrics(l.deps.metrics),
	}
	if sc.Language != "" {
		opts = append(opts, speech.WithLanguage(sc.Language))
	}
	if l.deps.stt != nil {
		opts = append(opts, speech.WithSTT(l.deps.stt))
	}
	if l.deps.tts != nil {
		opts = append(opts, speech.WithTTS(l.deps.tts))
	}
	if sc.PhoneticHints {
		opts = append(opts, speech.WithPhoneticHints(phonetic.New()))
	}
	l.cfg = sc
	l.svc.Store(speech.New(opts...))
}

func (l *liveSpeech) current() *speech.Service { return l.svc.Load() }

func (l *liveSpeech) GradePhraseText(ctx context.Context, expected, transcribed string) grading.PhraseGrade {
	return l.current().GradePhraseText(ctx, expected, transcribed)
}

func (l *liveSpeech) GradeWordsText(ctx context.Context, expected, transcribed string) speech.WordsResult {
	return l.current().GradeWordsText(ctx, expected, transcribed)
}

func (l *liveSpeech) GradePhraseRecording(ctx context.Context, audio stt.Audio, expected string) (speech.PhraseResult, error) {
	return l.current().GradePhraseRecording(ctx, audio, expected)
}

func (l *liveSpeech) GradeWordsRecording(ctx context.Context, audio stt.Audio, expected string) (speech.WordsResult, error) {
	return l.current().GradeWordsRecording(ctx, audio, expected)
}

func (l *liveSpeech) Speak(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	return l.current().Speak(ctx, text, voice)
}

func (l *liveSpeech) Voices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return l.current().Voices(ctx)
}
