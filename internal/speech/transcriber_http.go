package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TranscriberConfig points the pipeline at a speech-to-text HTTP service.
type TranscriberConfig struct {
	Endpoint string
	APIKey   string

	// SampleRate describes the PCM the pipeline uploads. Telephony audio
	// is 8kHz after μ-law expansion.
	SampleRate int

	Language      string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
}

func (c TranscriberConfig) withDefaults() TranscriberConfig {
	out := c
	if out.SampleRate <= 0 {
		out.SampleRate = 8000
	}
	if out.Language == "" {
		out.Language = "en"
	}
	if out.Timeout <= 0 {
		out.Timeout = 15 * time.Second
	}
	if out.MaxRetries < 0 {
		out.MaxRetries = 2
	}
	if out.MaxConcurrent <= 0 {
		out.MaxConcurrent = 10
	}
	return out
}

// HTTPTranscriber implements Transcriber against a Whisper-style HTTP
// endpoint: multipart upload of raw PCM plus parameters, JSON result back.
// Concurrency is capped with a semaphore so a burst of turns cannot flood
// the recognizer.
type HTTPTranscriber struct {
	cfg        TranscriberConfig
	httpClient *http.Client
	semaphore  chan struct{}
}

func NewHTTPTranscriber(cfg TranscriberConfig) (*HTTPTranscriber, error) {
	cfg = cfg.withDefaults()
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("speech: transcriber endpoint is required")
	}
	return &HTTPTranscriber{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
	}, nil
}

type transcriptionResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, pcm []byte) (TranscriptResult, error) {
	if len(pcm) == 0 {
		return TranscriptResult{}, ErrNoSpeech
	}

	select {
	case t.semaphore <- struct{}{}:
		defer func() { <-t.semaphore }()
	case <-ctx.Done():
		return TranscriptResult{}, ctx.Err()
	}

	var lastErr error
	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return TranscriptResult{}, ctx.Err()
			}
		}

		result, err := t.doRequest(ctx, pcm)
		if err == nil {
			if strings.TrimSpace(result.Text) == "" {
				return TranscriptResult{}, ErrNoSpeech
			}
			return result, nil
		}
		lastErr = err
	}
	return TranscriptResult{}, fmt.Errorf("speech: transcription failed after %d attempts: %w", t.cfg.MaxRetries+1, lastErr)
}

func (t *HTTPTranscriber) doRequest(ctx context.Context, pcm []byte) (TranscriptResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", uuid.NewString()+".pcm")
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fileWriter.Write(pcm); err != nil {
		return TranscriptResult{}, fmt.Errorf("write audio data: %w", err)
	}

	fields := map[string]string{
		"sample_rate": strconv.Itoa(t.cfg.SampleRate),
		"language":    t.cfg.Language,
		"format":      "pcm_s16le",
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return TranscriptResult{}, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return TranscriptResult{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, &buf)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if t.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TranscriptResult{}, fmt.Errorf("http error %d: %s", resp.StatusCode, string(body))
	}

	var decoded transcriptionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return TranscriptResult{}, fmt.Errorf("parse response: %w", err)
	}
	return TranscriptResult{
		Text:       decoded.Text,
		Confidence: decoded.Confidence,
		IsFinal:    decoded.IsFinal,
	}, nil
}
