package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts"
	ttsmock "github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts/mock"
)

func TestTTSFallback_Synthesize_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{SynthesizeResult: tts.Audio{Data: []byte("primary"), Provider: "primary"}}
	secondary := &ttsmock.Provider{SynthesizeResult: tts.Audio{Data: []byte("secondary")}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	voice := tts.VoiceProfile{ID: "v1", Name: "Léa"}
	audio, err := fb.Synthesize(context.Background(), "bonjour", voice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio.Data) != "primary" {
		t.Errorf("audio = %q, want primary", audio.Data)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 0 {
		t.Errorf("calls = %d/%d, want 1/0", primary.CallCount(), secondary.CallCount())
	}
	if primary.SynthesizeCalls[0].Text != "bonjour" || primary.SynthesizeCalls[0].Voice.ID != "v1" {
		t.Errorf("call = %+v", primary.SynthesizeCalls[0])
	}
}

func TestTTSFallback_Synthesize_Failover(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{SynthesizeErr: errors.New("primary down")}
	secondary := &ttsmock.Provider{SynthesizeResult: tts.Audio{Data: []byte("fallback")}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	audio, err := fb.Synthesize(context.Background(), "chat", tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio.Data) != "fallback" {
		t.Errorf("audio = %q, want fallback", audio.Data)
	}
}

func TestTTSFallback_Synthesize_AllFail(t *testing.T) {
	t.Parallel()

	fb := NewTTSFallback(&ttsmock.Provider{SynthesizeErr: errTest}, "primary", FallbackConfig{})
	fb.AddFallback("secondary", &ttsmock.Provider{SynthesizeErr: errTest})

	if _, err := fb.Synthesize(context.Background(), "chat", tts.VoiceProfile{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTTSFallback_Synthesize_BlankTextSkipsProviders(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{}
	fb := NewTTSFallback(primary, "primary", FallbackConfig{})

	if _, err := fb.Synthesize(context.Background(), "   ", tts.VoiceProfile{}); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if primary.CallCount() != 0 {
		t.Errorf("primary called %d times, want 0", primary.CallCount())
	}
}

func TestTTSFallback_ListVoices_Merges(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{ListVoicesResult: []tts.VoiceProfile{{ID: "a", Provider: "elevenlabs"}}}
	broken := &ttsmock.Provider{ListVoicesErr: errors.New("unreachable")}
	third := &ttsmock.Provider{ListVoicesResult: []tts.VoiceProfile{{ID: "b", Provider: "coqui"}, {ID: "c", Provider: "coqui"}}}

	fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{})
	fb.AddFallback("openai", broken)
	fb.AddFallback("coqui", third)

	voices, err := fb.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ids []string
	for _, v := range voices {
		ids = append(ids, v.ID)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
		t.Errorf("voices mismatch (-want +got):\n%s", diff)
	}
}

func TestTTSFallback_ListVoices_AllFail(t *testing.T) {
	t.Parallel()

	fb := NewTTSFallback(&ttsmock.Provider{ListVoicesErr: errTest}, "primary", FallbackConfig{})
	if _, err := fb.ListVoices(context.Background()); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
