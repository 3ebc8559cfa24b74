// Package api exposes the dictation service over HTTP.
//
// Routes (all JSON unless noted):
//
//	POST /v1/grade/phrase       grade a client-side transcript as a whole phrase
//	POST /v1/grade/words        align a client-side transcript word by word
//	POST /v1/dictation/phrase   multipart upload (audio, expected), phrase grade
//	POST /v1/dictation/words    multipart upload (audio, expected), word grade
//	POST /v1/speech             read text aloud; the body is the audio clip
//	GET  /v1/voices             list available voices
//
// Errors are returned as {"error": "...", "correlation_id": "..."}.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/grading"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/grading/phonetic"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/observe"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/resilience"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/internal/speech"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/stt"
	"github.com/Allakabeth/projet-aclef-pedagogie-sub006/pkg/provider/tts"
)

// DefaultMaxUploadBytes caps request bodies when no limit is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

// maxJSONBytes caps JSON request bodies, which only ever carry short texts.
const maxJSONBytes int64 = 64 << 10

// Speech is the part of [speech.Service] the handlers depend on.
type Speech interface {
	GradePhraseText(ctx context.Context, expected, transcribed string) grading.PhraseGrade
	GradeWordsText(ctx context.Context, expected, transcribed string) speech.WordsResult
	GradePhraseRecording(ctx context.Context, audio stt.Audio, expected string) (speech.PhraseResult, error)
	GradeWordsRecording(ctx context.Context, audio stt.Audio, expected string) (speech.WordsResult, error)
	Speak(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error)
	Voices(ctx context.Context) ([]tts.VoiceProfile, error)
}

var _ Speech = (*speech.Service)(nil)

// Option configures a [Handler].
type Option func(*Handler)

// WithMaxUploadBytes limits the size of uploaded recordings.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// Handler serves the /v1 routes.
type Handler struct {
	svc       Speech
	maxUpload int64
}

// New creates a [Handler] backed by svc.
func New(svc Speech, opts ...Option) *Handler {
	h := &Handler{svc: svc, maxUpload: DefaultMaxUploadBytes}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds the /v1 routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/grade/phrase", h.gradePhrase)
	mux.HandleFunc("POST /v1/grade/words", h.gradeWords)
	mux.HandleFunc("POST /v1/dictation/phrase", h.dictationPhrase)
	mux.HandleFunc("POST /v1/dictation/words", h.dictationWords)
	mux.HandleFunc("POST /v1/speech", h.speak)
	mux.HandleFunc("GET /v1/voices", h.voices)
}

// ─── request and response bodies ────────────────────────────────────────────

type gradeRequest struct {
	Expected    string `json:"expected"`
	Transcribed string `json:"transcribed"`
}

type transcriptBody struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
	Language   string  `json:"language,omitempty"`
	Provider   string  `json:"provider,omitempty"`
}

type wordsBody struct {
	Words   []grading.MatchResult `json:"words"`
	Percent int                   `json:"percent"`
	Hints   []phonetic.Hint       `json:"hints,omitempty"`
}

type phraseDictationResponse struct {
	Transcript transcriptBody      `json:"transcript"`
	Grade      grading.PhraseGrade `json:"grade"`
}

type wordsDictationResponse struct {
	Transcript transcriptBody `json:"transcript"`
	wordsBody
}

type speechRequest struct {
	Text  string           `json:"text"`
	Voice tts.VoiceProfile `json:"voice"`
}

type voicesResponse struct {
	Voices []tts.VoiceProfile `json:"voices"`
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func toTranscriptBody(t stt.Transcript) transcriptBody {
	return transcriptBody{Text: t.Text, Confidence: t.Confidence, Language: t.Language, Provider: t.Provider}
}

func toWordsBody(r speech.WordsResult) wordsBody {
	words := r.Score.Words
	if words == nil {
		words = []grading.MatchResult{}
	}
	return wordsBody{Words: words, Percent: r.Score.Percent, Hints: r.Hints}
}

// ─── handlers ───────────────────────────────────────────────────────────────

func (h *Handler) gradePhrase(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.GradePhraseText(r.Context(), req.Expected, req.Transcribed))
}

func (h *Handler) gradeWords(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, toWordsBody(h.svc.GradeWordsText(r.Context(), req.Expected, req.Transcribed)))
}

func (h *Handler) dictationPhrase(w http.ResponseWriter, r *http.Request) {
	audio, expected, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	res, err := h.svc.GradePhraseRecording(r.Context(), audio, expected)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, phraseDictationResponse{
		Transcript: toTranscriptBody(res.Transcript),
		Grade:      res.Grade,
	})
}

func (h *Handler) dictationWords(w http.ResponseWriter, r *http.Request) {
	audio, expected, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	res, err := h.svc.GradeWordsRecording(r.Context(), audio, expected)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wordsDictationResponse{
		Transcript: toTranscriptBody(res.Transcript),
		wordsBody:  toWordsBody(res),
	})
}

func (h *Handler) speak(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	audio, err := h.svc.Speak(r.Context(), req.Text, req.Voice)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ct := audio.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	if audio.Provider != "" {
		w.Header().Set("X-TTS-Provider", audio.Provider)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio.Data); err != nil {
		slog.Debug("api: write audio", "err", err)
	}
}

func (h *Handler) voices(w http.ResponseWriter, r *http.Request) {
	voices, err := h.svc.Voices(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if voices == nil {
		voices = []tts.VoiceProfile{}
	}
	writeJSON(w, http.StatusOK, voicesResponse{Voices: voices})
}

// ─── helpers ────────────────────────────────────────────────────────────────

// errBadRequest marks client errors detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }
func (e badRequest) Unwrap() error { return errBadRequest }

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, err)
			return false
		}
		writeError(w, r, badRequest{msg: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

// readUpload parses a multipart dictation upload: an "audio" file part and an
// "expected" text field.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (stt.Audio, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			writeError(w, r, err)
		} else {
			writeError(w, r, badRequest{msg: "invalid multipart body: " + err.Error()})
		}
		return stt.Audio{}, "", false
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, hdr, err := r.FormFile("audio")
	if err != nil {
		writeError(w, r, badRequest{msg: `missing "audio" file`})
		return stt.Audio{}, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, err)
		return stt.Audio{}, "", false
	}
	audio := stt.Audio{Data: data, ContentType: hdr.Header.Get("Content-Type")}
	return audio, r.FormValue("expected"), true
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, multipart.ErrMessageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, speech.ErrEmptyAudio),
		errors.Is(err, tts.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, speech.ErrNoProvider):
		return http.StatusNotImplemented
	case errors.Is(err, resilience.ErrAllFailed), errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("api: request failed",
			"path", r.URL.Path, "status", status, "err", err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeJSON(w, status, errorResponse{Error: msg, CorrelationID: observe.CorrelationID(r.Context())})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("api: encode response", "err", err)
	}
}
