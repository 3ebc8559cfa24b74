// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// pre-recorded REST API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/stt"
)

const (
	providerName     = "deepgram"
	defaultBaseURL   = "https://api.deepgram.com"
	listenPath       = "/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "fr"
	keywordBoost     = 2
	maxErrorBodySize = 1 << 10
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "nova-2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default language code for recognition (e.g., "fr").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithBaseURL overrides the API host. Used by tests and self-hosted deployments.
func WithBaseURL(base string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by the Deepgram pre-recorded API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	baseURL    string
	httpClient *http.Client
}

var _ stt.Provider = (*Provider)(nil)

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads the recording as the request body and returns the first
// alternative of the first channel.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio, opts stt.Options) (stt.Transcript, error) {
	if len(audio.Data) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}
	data, _, contentType := stt.AsFile(audio)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.buildURL(opts), bytes.NewReader(data))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: POST %s: %w", listenPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return stt.Transcript{}, fmt.Errorf("deepgram: POST %s returned status %d: %s", listenPath, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var dr listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: decode response: %w", err)
	}
	return dr.transcript(), nil
}

// buildURL constructs the listen endpoint URL for the given options.
func (p *Provider) buildURL(opts stt.Options) string {
	lang := opts.Language
	if lang == "" {
		lang = p.language
	}

	q := url.Values{}
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "false")

	// nova-3 takes plain key terms; older models take word:boost pairs.
	for _, kw := range opts.Keywords {
		if strings.HasPrefix(p.model, "nova-3") {
			q.Add("keyterm", kw)
		} else {
			q.Add("keywords", kw+":"+strconv.Itoa(keywordBoost))
		}
	}
	return p.baseURL + listenPath + "?" + q.Encode()
}

// listenResponse is the subset of the Deepgram pre-recorded response we use.
type listenResponse struct {
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
				Words      []struct {
					Word       string  `json:"word"`
					Start      float64 `json:"start"`
					End        float64 `json:"end"`
					Confidence float64 `json:"confidence"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (r listenResponse) transcript() stt.Transcript {
	t := stt.Transcript{Provider: providerName}
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return t
	}
	ch := r.Results.Channels[0]
	alt := ch.Alternatives[0]

	t.Text = alt.Transcript
	t.Confidence = alt.Confidence
	t.Language = ch.DetectedLanguage
	if len(alt.Words) > 0 {
		t.Words = make([]stt.WordDetail, 0, len(alt.Words))
		for _, w := range alt.Words {
			t.Words = append(t.Words, stt.WordDetail{
				Word:       w.Word,
				Start:      time.Duration(w.Start * float64(time.Second)),
				End:        time.Duration(w.End * float64(time.Second)),
				Confidence: w.Confidence,
			})
		}
	}
	return t
}
