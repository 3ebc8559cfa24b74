// Package stt defines the Provider interface for Speech-to-Text backends.
//
// Dictation exercises record a whole answer in the browser and upload it once
// the learner stops speaking, so the interface is batch-oriented: one
// recording in, one [Transcript] out. The transcript text is what the grading
// package compares against the expected phrase.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"time"
)

// ContentTypePCM marks [Audio.Data] as raw 16-bit signed little-endian PCM.
// Providers that need a container wrap it with [EncodeWAV].
const ContentTypePCM = "audio/pcm"

// ErrEmptyAudio is returned by providers when asked to transcribe no audio.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Audio is one finished recording.
type Audio struct {
	// Data holds the encoded file (webm, ogg, wav, mp3, ...) or raw PCM when
	// ContentType is [ContentTypePCM].
	Data []byte

	// ContentType is the MIME type of Data (e.g., "audio/webm").
	ContentType string

	// SampleRate and Channels describe raw PCM. Ignored for encoded files.
	SampleRate int
	Channels   int
}

// Options carries per-request recognition hints.
type Options struct {
	// Language is the BCP-47 language tag (e.g., "fr"). Empty uses the
	// provider default.
	Language string

	// Keywords lists words the learner is expected to say. Providers that
	// support vocabulary boosting use them as hints; others ignore them.
	Keywords []string
}

// Transcript is a speech-to-text result.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report one.
	Confidence float64

	// Words contains per-word detail when available. Nil otherwise.
	Words []WordDetail

	// Language is the language the provider recognised, when reported.
	Language string

	// Provider names the backend that produced the transcript.
	Provider string
}

// WordDetail holds per-word metadata from providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts one recording to text. It returns [ErrEmptyAudio]
	// for an empty recording and respects ctx cancellation.
	Transcribe(ctx context.Context, audio Audio, opts Options) (Transcript, error)
}
