package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ceroai/appointment-reminder-calls/internal/audio"
	"github.com/ceroai/appointment-reminder-calls/pkg/logging"
)

var elevenLabsTracer = otel.Tracer("reminders.internal.tts.elevenlabs")

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultTimeout = 30 * time.Second

	// DefaultVoiceID is the Spanish voice used when none is configured.
	DefaultVoiceID = "GJid0jgRsqjUy21Avuex"

	// modelID handles the Spanish reminder scripts; outputFormat matches what
	// Twilio <Play> expects.
	modelID      = "eleven_multilingual_v2"
	outputFormat = "mp3_44100_128"
)

// Config holds ElevenLabs client configuration.
type Config struct {
	APIKey  string
	VoiceID string
	// BaseURL overrides the API endpoint, used in tests.
	BaseURL string
	Timeout time.Duration
}

// ElevenLabs synthesizes speech through the ElevenLabs streaming
// text-to-speech API. The streamed response is accumulated fully in memory
// before being returned.
type ElevenLabs struct {
	apiKey     string
	voiceID    string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewElevenLabs builds a synthesizer with sane defaults.
func NewElevenLabs(cfg Config, logger *logging.Logger) (*ElevenLabs, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("tts: elevenlabs api key required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	voiceID := cfg.VoiceID
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &ElevenLabs{
		apiKey:  cfg.APIKey,
		voiceID: voiceID,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

var _ audio.Synthesizer = (*ElevenLabs)(nil)

// Synthesize converts text to MP3 bytes.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("tts: text required")
	}

	ctx, span := elevenLabsTracer.Start(ctx, "tts.elevenlabs.synthesize")
	defer span.End()
	span.SetAttributes(attribute.Int("reminders.text_length", len(text)))

	payload, err := json.Marshal(map[string]string{
		"text":     text,
		"model_id": modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("tts: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=%s", e.baseURL, e.voiceID, outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("tts: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("tts: elevenlabs request failed: %s", formatElevenLabsError(resp.StatusCode, body))
		span.RecordError(err)
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("tts: read audio stream: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("tts: elevenlabs returned empty audio")
	}

	e.logger.Debug("speech synthesized", "bytes", len(data))
	return data, nil
}

type elevenLabsAPIError struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

func formatElevenLabsError(status int, body []byte) string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return fmt.Sprintf("status %d", status)
	}
	var parsed elevenLabsAPIError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Detail.Message != "" {
		return fmt.Sprintf("status %d: %s", status, parsed.Detail.Message)
	}
	// Fallback: return raw body (truncated by the read limit).
	return fmt.Sprintf("status %d: %s", status, string(body))
}
