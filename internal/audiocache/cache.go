// Package audiocache stores synthesized speech clips so that replaying the
// same sentence in the same voice does not hit a TTS backend again.
//
// Two [Cache] implementations are provided: [Memory], a bounded in-process
// LRU, and [Postgres], a shared table for multi-instance deployments. The
// [Synthesizer] decorator puts either of them in front of a [tts.Provider].
package audiocache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/grading"
)

// ErrMiss is returned by [Cache.Get] when no live entry exists for a key.
var ErrMiss = errors.New("audiocache: miss")

// Entry is one cached clip.
type Entry struct {
	Data        []byte
	ContentType string
	Provider    string
	CreatedAt   time.Time
}

// Cache is a key-value store for synthesized audio. Implementations must be
// safe for concurrent use.
type Cache interface {
	// Get returns the entry for key, or [ErrMiss].
	Get(ctx context.Context, key string) (Entry, error)

	// Put stores e under key, replacing any previous entry.
	Put(ctx context.Context, key string, e Entry) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// Key derives the cache key for text spoken by voiceID. Casing and stray
// punctuation reuse the same clip, but a closing question or exclamation mark
// does not, since voices read those with a different intonation.
func Key(voiceID, text string) string {
	h := sha256.New()
	h.Write([]byte(voiceID))
	h.Write([]byte{0})
	h.Write([]byte(grading.NormalizePhrase(text)))
	h.Write([]byte{0})
	h.Write([]byte(intonation(text)))
	return hex.EncodeToString(h.Sum(nil))
}

// intonation reports "?" or "!" when the trailing punctuation of text holds
// one, with questions taking precedence, and "" otherwise.
func intonation(text string) string {
	body := strings.TrimRightFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	tail := text[len(body):]
	switch {
	case strings.ContainsRune(tail, '?'):
		return "?"
	case strings.ContainsRune(tail, '!'):
		return "!"
	}
	return ""
}
