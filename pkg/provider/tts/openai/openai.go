// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts"
)

const (
	providerName = "openai"

	// DefaultModel is the default OpenAI speech model.
	DefaultModel = "tts-1"

	// DefaultVoice is used when a request names no OpenAI voice.
	DefaultVoice = "alloy"

	// maxSpeed and minSpeed bound the speed parameter accepted by the API.
	minSpeed = 0.25
	maxSpeed = 4.0
)

// builtinVoices is the fixed catalogue of OpenAI voices. The API has no
// listing endpoint.
var builtinVoices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	model        string
	defaultVoice string
}

type config struct {
	baseURL      string
	timeout      time.Duration
	defaultVoice string
	maxRetries   int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithDefaultVoice sets the voice used when a request names none.
func WithDefaultVoice(voice string) Option {
	return func(c *config) {
		c.defaultVoice = voice
	}
}

// WithMaxRetries sets how many times the client retries a failed request.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a new OpenAI TTS Provider. If model is empty, DefaultModel
// (tts-1) is used.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{defaultVoice: DefaultVoice, maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		defaultVoice: cfg.defaultVoice,
	}, nil
}

// Synthesize implements tts.Provider. The clip is returned as MP3.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Audio{}, tts.ErrEmptyText
	}

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice.VoiceFor(providerName, p.defaultVoice)),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
		Speed:          oai.Float(clampSpeed(voice.Speed())),
	})
	if err != nil {
		return tts.Audio{}, fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("openai tts: read audio: %w", err)
	}
	if len(data) == 0 {
		return tts.Audio{}, errors.New("openai tts: empty audio response")
	}
	return tts.Audio{Data: data, ContentType: "audio/mpeg", Provider: providerName}, nil
}

// ListVoices implements tts.Provider with the built-in voice catalogue.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	profiles := make([]tts.VoiceProfile, 0, len(builtinVoices))
	for _, v := range builtinVoices {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v,
			Name:     v,
			Provider: providerName,
			Metadata: map[string]string{"model": p.model, "default": fmt.Sprint(v == p.defaultVoice)},
		})
	}
	return profiles, nil
}

// ModelID returns the configured speech model.
func (p *Provider) ModelID() string {
	return p.model
}

func clampSpeed(s float64) float64 {
	return min(max(s, minSpeed), maxSpeed)
}
