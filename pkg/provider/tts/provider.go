// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs, OpenAI,
// or a local Coqui server) and presents a uniform interface. Reading
// exercises play back a model pronunciation of a word or phrase, so the
// interface returns one complete audio file per request; streaming
// providers collect their chunks before returning.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned by providers when asked to synthesise no text.
var ErrEmptyText = errors.New("tts: empty text")

// VoiceProfile describes a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string `json:"id" yaml:"id"`

	// Name is a human-readable label.
	Name string `json:"name,omitempty" yaml:"name"`

	// Provider names the backend the ID belongs to. A provider only honours
	// ID when Provider is empty or names itself, and otherwise falls back to
	// its own default voice.
	Provider string `json:"provider,omitempty" yaml:"provider"`

	// Language is the BCP-47 language tag of the voice, when known.
	Language string `json:"language,omitempty" yaml:"language"`

	// SpeedFactor scales speaking rate. 1.0 (or zero) is normal speed;
	// slower speech helps beginning readers.
	SpeedFactor float64 `json:"speed_factor,omitempty" yaml:"speed_factor"`

	// Metadata holds provider-specific extras.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata"`
}

// VoiceFor returns the ID that provider should use for v, or fallback when
// the profile targets another backend or names no voice.
func (v VoiceProfile) VoiceFor(provider, fallback string) string {
	if v.ID == "" || (v.Provider != "" && v.Provider != provider) {
		return fallback
	}
	return v.ID
}

// Speed returns SpeedFactor, treating zero as normal speed.
func (v VoiceProfile) Speed() float64 {
	if v.SpeedFactor <= 0 {
		return 1.0
	}
	return v.SpeedFactor
}

// Audio is a synthesised clip.
type Audio struct {
	// Data holds the encoded audio file.
	Data []byte `json:"-"`

	// ContentType is the MIME type of Data (e.g., "audio/mpeg").
	ContentType string `json:"content_type"`

	// Provider names the backend that produced the clip.
	Provider string `json:"provider,omitempty"`
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice. It returns [ErrEmptyText]
	// when text is blank and respects ctx cancellation.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (Audio, error)

	// ListVoices returns the voices available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
