package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/config"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/stt"
	sttmock "github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/stt/mock"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts"
	ttsmock "github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
  read_timeout: 30s
  max_upload_bytes: 2097152

providers:
  stt:
    name: whisper
    base_url: http://whisper:8080
    options:
      rms_threshold: 250
    fallbacks:
      - name: deepgram
        api_key: dg-test
        model: nova-3
  tts:
    name: elevenlabs
    api_key: el-test
    fallbacks:
      - name: openai
        api_key: sk-test
        model: tts-1

resilience:
  max_failures: 3
  reset_timeout: 15s

cache:
  backend: memory
  max_entries: 64
  ttl: 24h

speech:
  language: fr
  phonetic_hints: true
  default_voice:
    provider: elevenlabs
    voice_id: lea
    speed_factor: 0.8

telemetry:
  service_name: aclef-test
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9000")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("server.read_timeout: got %s, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.MaxUploadBytes != 2<<20 {
		t.Errorf("server.max_upload_bytes: got %d", cfg.Server.MaxUploadBytes)
	}

	var sttNames, ttsNames []string
	for _, e := range cfg.Providers.STT.Entries() {
		sttNames = append(sttNames, e.Name)
	}
	for _, e := range cfg.Providers.TTS.Entries() {
		ttsNames = append(ttsNames, e.Name)
	}
	if diff := cmp.Diff([]string{"whisper", "deepgram"}, sttNames); diff != "" {
		t.Errorf("stt entries mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"elevenlabs", "openai"}, ttsNames); diff != "" {
		t.Errorf("tts entries mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.Providers.STT.FloatOption("rms_threshold", 0); got != 250 {
		t.Errorf("rms_threshold option: got %v, want 250", got)
	}

	if cfg.Resilience.MaxFailures != 3 || cfg.Resilience.ResetTimeout != 15*time.Second {
		t.Errorf("resilience: got %+v", cfg.Resilience)
	}
	if cfg.Cache.Backend != config.CacheMemory || cfg.Cache.MaxEntries != 64 || cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("cache: got %+v", cfg.Cache)
	}
	if !cfg.Speech.PhoneticHints {
		t.Error("speech.phonetic_hints: got false, want true")
	}
	want := tts.VoiceProfile{ID: "lea", Provider: "elevenlabs", SpeedFactor: 0.8}
	if diff := cmp.Diff(want, cfg.Speech.DefaultVoice.Profile()); diff != "" {
		t.Errorf("default voice mismatch (-want +got):\n%s", diff)
	}
	if cfg.Telemetry.ServiceName != "aclef-test" {
		t.Errorf("telemetry.service_name: got %q", cfg.Telemetry.ServiceName)
	}
	if cfg.Telemetry.MetricsPath != config.DefaultMetricsPath {
		t.Errorf("telemetry.metrics_path: got %q, want default", cfg.Telemetry.MetricsPath)
	}
}

func TestLoadFromReader_EmptyGetsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}

	want := config.Config{
		Server: config.ServerConfig{
			ListenAddr:      config.DefaultListenAddr,
			LogLevel:        config.LogInfo,
			ReadTimeout:     config.DefaultReadTimeout,
			ShutdownTimeout: config.DefaultShutdownTimeout,
			MaxUploadBytes:  config.DefaultMaxUploadBytes,
		},
		Cache: config.CacheConfig{
			Backend:    config.CacheMemory,
			MaxEntries: config.DefaultMaxEntries,
			TTL:        config.DefaultCacheTTL,
		},
		Speech: config.SpeechConfig{Language: config.DefaultLanguage},
		Telemetry: config.TelemetryConfig{
			ServiceName: config.DefaultServiceName,
			MetricsPath: config.DefaultMetricsPath,
		},
	}
	if diff := cmp.Diff(want, *cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adress: \":80\"\n"))
	if err == nil {
		t.Fatal("expected error for misspelled field, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load error = %v, want os.ErrNotExist", err)
	}
}

// ── Environment ──────────────────────────────────────────────────────────────

func TestExpandEnv(t *testing.T) {
	t.Setenv("ACLEF_TEST_KEY", "secret")
	t.Setenv("ACLEF_TEST_EMPTY", "")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "api_key: ${ACLEF_TEST_KEY}", "api_key: secret"},
		{"default unused", "api_key: ${ACLEF_TEST_KEY:-fallback}", "api_key: secret"},
		{"default on empty", "api_key: ${ACLEF_TEST_EMPTY:-fallback}", "api_key: fallback"},
		{"unset no default", "api_key: ${ACLEF_TEST_UNSET_VAR}", "api_key: "},
		{"bare dollar kept", "api_key: pa$$word", "api_key: pa$$word"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := config.ExpandEnv(tt.in); got != tt.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("ACLEF_TEST_DG_KEY", "dg-from-env")
	yaml := `
providers:
  stt:
    name: deepgram
    api_key: ${ACLEF_TEST_DG_KEY}
cache:
  backend: ${ACLEF_TEST_CACHE_BACKEND:-none}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.STT.APIKey != "dg-from-env" {
		t.Errorf("api_key: got %q, want %q", cfg.Providers.STT.APIKey, "dg-from-env")
	}
	if cfg.Cache.Backend != config.CacheNone {
		t.Errorf("cache.backend: got %q, want %q", cfg.Cache.Backend, config.CacheNone)
	}
}

func TestLoadFromReader_EnvValuesAreNotYAML(t *testing.T) {
	const doc = `
server:
  listen_addr: ":9000"
providers:
  stt:
    name: deepgram
    # comment mentioning ${ACLEF_TEST_SECRET} is not expanded
    api_key: ${ACLEF_TEST_SECRET}
cache:
  max_entries: ${ACLEF_TEST_MAX_ENTRIES:-64}
`
	tests := []struct {
		name   string
		secret string
	}{
		{"colon space", "sk: live"},
		{"leading star", "*abc123"},
		{"leading ampersand", "&anchor"},
		{"newline injection", "abc\nserver:\n  listen_addr: \":1\""},
		{"hash", "abc #def"},
		{"quotes", `a"b'c`},
		{"digits only", "123456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ACLEF_TEST_SECRET", tt.secret)
			cfg, err := config.LoadFromReader(strings.NewReader(doc))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Providers.STT.APIKey != tt.secret {
				t.Errorf("api_key: got %q, want %q", cfg.Providers.STT.APIKey, tt.secret)
			}
			if cfg.Server.ListenAddr != ":9000" {
				t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9000")
			}
			if cfg.Cache.MaxEntries != 64 {
				t.Errorf("max_entries: got %d, want 64", cfg.Cache.MaxEntries)
			}
		})
	}
}

func TestLoadFromReader_EnvIntoQuotedValue(t *testing.T) {
	t.Setenv("ACLEF_TEST_SECRET", "0123")
	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  stt:
    name: deepgram
    api_key: "${ACLEF_TEST_SECRET}"
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.STT.APIKey != "0123" {
		t.Errorf("api_key: got %q, want %q", cfg.Providers.STT.APIKey, "0123")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "ACLEF_TEST_DOTENV_NEW=from-file\nACLEF_TEST_DOTENV_SET=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("ACLEF_TEST_DOTENV_SET", "from-env")
	// Registered so the variable is restored after the test.
	t.Setenv("ACLEF_TEST_DOTENV_NEW", "")
	os.Unsetenv("ACLEF_TEST_DOTENV_NEW")

	if err := config.LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("ACLEF_TEST_DOTENV_NEW"); got != "from-file" {
		t.Errorf("new var: got %q, want %q", got, "from-file")
	}
	if got := os.Getenv("ACLEF_TEST_DOTENV_SET"); got != "from-env" {
		t.Errorf("existing var must not be overridden, got %q", got)
	}
}

// ── Provider options ─────────────────────────────────────────────────────────

func TestProviderEntry_Options(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{
		"voice":   "alloy",
		"speed":   1.25,
		"rms":     300,
		"timeout": "45s",
		"broken":  "soon",
	}}

	if got := e.StringOption("voice", "x"); got != "alloy" {
		t.Errorf("StringOption(voice) = %q", got)
	}
	if got := e.StringOption("speed", "x"); got != "x" {
		t.Errorf("StringOption on a number should fall back, got %q", got)
	}
	if got := e.FloatOption("speed", 0); got != 1.25 {
		t.Errorf("FloatOption(speed) = %v", got)
	}
	if got := e.FloatOption("rms", 0); got != 300 {
		t.Errorf("FloatOption(rms) = %v", got)
	}
	if got := e.DurationOption("timeout", time.Second); got != 45*time.Second {
		t.Errorf("DurationOption(timeout) = %s", got)
	}
	if got := e.DurationOption("broken", time.Second); got != time.Second {
		t.Errorf("DurationOption on garbage should fall back, got %s", got)
	}
	if got := e.DurationOption("absent", 2*time.Second); got != 2*time.Second {
		t.Errorf("DurationOption(absent) = %s", got)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT: got %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS: got %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.ProviderEntry
	sttProv := &sttmock.Provider{}
	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		gotEntry = e
		return sttProv, nil
	})
	ttsProv := &ttsmock.Provider{}
	reg.RegisterTTS("coqui", func(config.ProviderEntry) (tts.Provider, error) { return ttsProv, nil })
	reg.RegisterTTS("elevenlabs", func(config.ProviderEntry) (tts.Provider, error) { return ttsProv, nil })

	p, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper", BaseURL: "http://w"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p != sttProv {
		t.Error("CreateSTT returned a different provider")
	}
	if gotEntry.BaseURL != "http://w" {
		t.Errorf("factory received entry %+v", gotEntry)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "coqui"}); err != nil {
		t.Fatalf("CreateTTS: %v", err)
	}

	if diff := cmp.Diff([]string{"coqui", "elevenlabs"}, reg.Names("tts")); diff != "" {
		t.Errorf("Names(tts) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"whisper"}, reg.Names("stt")); diff != "" {
		t.Errorf("Names(stt) mismatch (-want +got):\n%s", diff)
	}
	if got := reg.Names("llm"); len(got) != 0 {
		t.Errorf("Names(llm) = %v, want empty", got)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("missing api key")
	reg.RegisterTTS("openai", func(config.ProviderEntry) (tts.Provider, error) { return nil, boom })

	_, err := reg.CreateTTS(config.ProviderEntry{Name: "openai"})
	if !errors.Is(err, boom) {
		t.Errorf("CreateTTS: got %v, want %v", err, boom)
	}
}
