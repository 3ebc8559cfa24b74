package audiocache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/observe"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts"
)

var _ tts.Provider = (*Synthesizer)(nil)

// Synthesizer wraps a [tts.Provider] with a [Cache]. Cache failures are
// logged and otherwise ignored: a broken cache never breaks synthesis.
type Synthesizer struct {
	next    tts.Provider
	cache   Cache
	metrics *observe.Metrics
}

// SynthesizerOption configures a [Synthesizer].
type SynthesizerOption func(*Synthesizer)

// WithMetrics records lookups on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) SynthesizerOption {
	return func(s *Synthesizer) { s.metrics = m }
}

// NewSynthesizer puts cache in front of next.
func NewSynthesizer(next tts.Provider, cache Cache, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{next: next, cache: cache}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Synthesize returns the cached clip for (voice, text) or renders it with the
// wrapped provider and stores the result.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Audio{}, tts.ErrEmptyText
	}
	key := Key(voiceKey(voice), text)

	e, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		s.metrics.RecordCacheLookup(ctx, "hit")
		return tts.Audio{Data: e.Data, ContentType: e.ContentType, Provider: e.Provider}, nil
	case errors.Is(err, ErrMiss):
		s.metrics.RecordCacheLookup(ctx, "miss")
	default:
		s.metrics.RecordCacheLookup(ctx, "error")
		slog.Warn("audiocache: lookup failed", "key", key, "err", err)
	}

	audio, err := s.next.Synthesize(ctx, text, voice)
	if err != nil {
		return tts.Audio{}, err
	}
	if len(audio.Data) == 0 {
		return audio, nil
	}

	entry := Entry{Data: audio.Data, ContentType: audio.ContentType, Provider: audio.Provider}
	if err := s.cache.Put(ctx, key, entry); err != nil {
		slog.Warn("audiocache: store failed", "key", key, "err", err)
	}
	return audio, nil
}

// ListVoices delegates to the wrapped provider.
func (s *Synthesizer) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return s.next.ListVoices(ctx)
}

// voiceKey identifies everything about a voice that changes the rendered
// audio.
func voiceKey(v tts.VoiceProfile) string {
	return v.Provider + "/" + v.ID + "@" + strconv.FormatFloat(v.Speed(), 'f', 2, 64)
}
