package config_test

import (
	"strings"
	"testing"

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantSub string
	}{
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: verbose\n",
			wantSub: "log_level",
		},
		{
			name:    "negative upload limit",
			yaml:    "server:\n  max_upload_bytes: -1\n",
			wantSub: "max_upload_bytes",
		},
		{
			name:    "half tls",
			yaml:    "server:\n  tls:\n    cert_file: cert.pem\n",
			wantSub: "key_file",
		},
		{
			name: "fallbacks without primary",
			yaml: `
providers:
  tts:
    fallbacks:
      - name: openai
`,
			wantSub: "providers.tts.name is required",
		},
		{
			name: "fallback missing name",
			yaml: `
providers:
  stt:
    name: whisper
    fallbacks:
      - api_key: x
`,
			wantSub: "providers.stt.fallbacks[0].name",
		},
		{
			name: "duplicate provider in group",
			yaml: `
providers:
  tts:
    name: elevenlabs
    fallbacks:
      - name: coqui
      - name: elevenlabs
`,
			wantSub: "listed twice",
		},
		{
			name:    "negative resilience",
			yaml:    "resilience:\n  max_failures: -2\n",
			wantSub: "resilience",
		},
		{
			name:    "invalid cache backend",
			yaml:    "cache:\n  backend: redis\n",
			wantSub: "cache.backend",
		},
		{
			name:    "postgres without dsn",
			yaml:    "cache:\n  backend: postgres\n",
			wantSub: "postgres_dsn",
		},
		{
			name:    "speed factor too fast",
			yaml:    "speech:\n  default_voice:\n    speed_factor: 3.0\n",
			wantSub: "speed_factor",
		},
		{
			name:    "speed factor too slow",
			yaml:    "speech:\n  default_voice:\n    speed_factor: 0.2\n",
			wantSub: "speed_factor",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error should mention %q, got: %v", tt.wantSub, err)
			}
		})
	}
}

func TestValidate_ValidGroups(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt:
    name: whisper
    fallbacks:
      - name: deepgram
  tts:
    name: coqui
    fallbacks:
      - name: openai
      - name: elevenlabs
cache:
  backend: postgres
  postgres_dsn: postgres://aclef@localhost/aclef
speech:
  default_voice:
    provider: coqui
    voice_id: fr_female
    speed_factor: 0.5
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownProviderNameOnlyWarns(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  tts:
    name: my-house-tts
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown provider names must not fail validation: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
cache:
  backend: postgres
speech:
  default_voice:
    speed_factor: 9
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	for _, sub := range []string{"log_level", "postgres_dsn", "speed_factor"} {
		if !strings.Contains(err.Error(), sub) {
			t.Errorf("joined error should mention %q, got: %v", sub, err)
		}
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"stt", "tts"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
}
