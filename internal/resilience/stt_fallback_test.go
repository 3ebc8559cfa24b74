package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/stt"
	sttmock "github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/stt/mock"
)

var recording = stt.Audio{Data: []byte("webm"), ContentType: "audio/webm"}

func TestSTTFallback_Transcribe_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Result: stt.Transcript{Text: "le chat dort", Provider: "whisper"}}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "fallback"}}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{})
	fb.AddFallback("deepgram", secondary)

	opts := stt.Options{Language: "fr", Keywords: []string{"chat"}}
	got, err := fb.Transcribe(context.Background(), recording, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "le chat dort" {
		t.Errorf("text = %q", got.Text)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 0 {
		t.Errorf("calls = %d/%d, want 1/0", primary.CallCount(), secondary.CallCount())
	}
	if primary.Calls[0].Opts.Language != "fr" {
		t.Errorf("opts not forwarded: %+v", primary.Calls[0].Opts)
	}
}

func TestSTTFallback_Transcribe_Failover(t *testing.T) {
	t.Parallel()

	var hops []string
	primary := &sttmock.Provider{Err: errors.New("connection refused")}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "bonjour"}}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{
		OnFailure: func(name string, _ error) { hops = append(hops, name) },
	})
	fb.AddFallback("deepgram", secondary)

	got, err := fb.Transcribe(context.Background(), recording, stt.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "bonjour" {
		t.Errorf("text = %q, want bonjour", got.Text)
	}
	if len(hops) != 1 || hops[0] != "whisper" {
		t.Errorf("hops = %v, want [whisper]", hops)
	}
}

func TestSTTFallback_Transcribe_AllFail(t *testing.T) {
	t.Parallel()

	fb := NewSTTFallback(&sttmock.Provider{Err: errTest}, "whisper", FallbackConfig{})
	fb.AddFallback("deepgram", &sttmock.Provider{Err: errTest})

	if _, err := fb.Transcribe(context.Background(), recording, stt.Options{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestSTTFallback_Transcribe_EmptyAudio(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{}
	fb := NewSTTFallback(primary, "whisper", FallbackConfig{})

	if _, err := fb.Transcribe(context.Background(), stt.Audio{}, stt.Options{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
	if primary.CallCount() != 0 {
		t.Error("provider must not be called for empty audio")
	}
	if fb.Group().States()["whisper"] != StateClosed {
		t.Error("breaker must stay closed")
	}
}
