package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults] to unset fields.
const (
	DefaultListenAddr      = ":8080"
	DefaultReadTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxUploadBytes  = 10 << 20
	DefaultLanguage        = "fr"
	DefaultMaxEntries      = 512
	DefaultCacheTTL        = 7 * 24 * time.Hour
	DefaultServiceName     = "aclef"
	DefaultMetricsPath     = "/metrics"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "deepgram"},
	"tts": {"elevenlabs", "coqui", "openai"},
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped. With no arguments it reads ".env".
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes the YAML in r, expands ${VAR} references in scalar
// values, fills in defaults, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if root.Kind != 0 {
		expandNode(&root)
		// Re-encoding lets the emitter quote expanded values, so the strict
		// decoder below still sees a single scalar per reference.
		expanded, err := yaml.Marshal(&root)
		if err != nil {
			return nil, fmt.Errorf("config: expand env: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(expanded))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandNode applies [ExpandEnv] to every scalar value below n. Mapping keys,
// comments and aliases are left untouched.
func expandNode(n *yaml.Node) {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			expandNode(c)
		}
	case yaml.MappingNode:
		for i := 1; i < len(n.Content); i += 2 {
			expandNode(n.Content[i])
		}
	case yaml.ScalarNode:
		v := ExpandEnv(n.Value)
		if v == n.Value {
			return
		}
		n.Value = v
		// A plain ${VAR} resolves as a string; drop the tag so "${MAX:-512}"
		// can still fill an int field.
		if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) == 0 {
			n.Tag = ""
		}
	}
}

// envRef matches ${NAME} and ${NAME:-default}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${NAME} with the value of the environment variable NAME
// and ${NAME:-default} with default when NAME is unset or empty. A bare $ is
// left alone so that secrets containing dollar signs survive.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		sub := envRef.FindStringSubmatch(m)
		if v := os.Getenv(sub[1]); v != "" {
			return v
		}
		return sub[2]
	})
}

// ApplyDefaults fills unset fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheMemory
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultMaxEntries
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Speech.Language == "" {
		cfg.Speech.Language = DefaultLanguage
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Telemetry.MetricsPath == "" {
		cfg.Telemetry.MetricsPath = DefaultMetricsPath
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.ReadTimeout < 0 || cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	errs = append(errs, validateGroup("stt", cfg.Providers.STT)...)
	errs = append(errs, validateGroup("tts", cfg.Providers.TTS)...)
	if len(cfg.Providers.STT.Entries()) == 0 {
		slog.Warn("no STT provider configured; only text grading will be available")
	}
	if len(cfg.Providers.TTS.Entries()) == 0 {
		slog.Warn("no TTS provider configured; speech synthesis will not be available")
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 || cfg.Resilience.HalfOpenMax < 0 || cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience values must not be negative"))
	}

	// Cache
	if !cfg.Cache.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("cache.backend %q is invalid; valid values: memory, postgres, none", cfg.Cache.Backend))
	}
	if cfg.Cache.Backend == CachePostgres && cfg.Cache.PostgresDSN == "" {
		errs = append(errs, errors.New("cache.postgres_dsn is required when cache.backend is postgres"))
	}
	if cfg.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cache.max_entries %d must not be negative", cfg.Cache.MaxEntries))
	}
	if cfg.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl %s must not be negative", cfg.Cache.TTL))
	}

	// Speech
	if sf := cfg.Speech.DefaultVoice.SpeedFactor; sf != 0 && (sf < 0.5 || sf > 2.0) {
		errs = append(errs, fmt.Errorf("speech.default_voice.speed_factor %.2f is out of range [0.5, 2.0]", sf))
	}
	if p := cfg.Speech.DefaultVoice.Provider; p != "" {
		known := false
		for _, e := range cfg.Providers.TTS.Entries() {
			known = known || e.Name == p
		}
		if !known {
			slog.Warn("default voice provider is not among the configured TTS providers",
				"voice_provider", p)
		}
	}

	return errors.Join(errs...)
}

// validateGroup checks one provider group: every fallback needs a name and
// names must be unique within the group.
func validateGroup(kind string, g ProviderGroup) []error {
	var errs []error
	if g.Name == "" && len(g.Fallbacks) > 0 {
		errs = append(errs, fmt.Errorf("providers.%s.name is required when fallbacks are configured", kind))
	}
	seen := make(map[string]bool)
	check := func(path, name string) {
		if seen[name] {
			errs = append(errs, fmt.Errorf("%s: provider %q is listed twice in providers.%s", path, name, kind))
		}
		seen[name] = true
		validateProviderName(kind, name)
	}
	if g.Name != "" {
		check("providers."+kind, g.Name)
	}
	for i, f := range g.Fallbacks {
		path := fmt.Sprintf("providers.%s.fallbacks[%d]", kind, i)
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", path))
			continue
		}
		check(path, f.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
