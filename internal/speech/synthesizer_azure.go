package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AzureConfig points the synthesizer at an Azure Cognitive Services speech
// resource.
type AzureConfig struct {
	Region string
	Key    string

	// OutputFormat is the Azure audio output format identifier. The
	// telephony leg consumes 8kHz μ-law.
	OutputFormat string

	Timeout time.Duration
}

func (c AzureConfig) withDefaults() AzureConfig {
	out := c
	if out.OutputFormat == "" {
		out.OutputFormat = "raw-8khz-8bit-mono-mulaw"
	}
	if out.Timeout <= 0 {
		out.Timeout = 10 * time.Second
	}
	return out
}

// AzureSynthesizer implements Synthesizer against the Azure TTS REST
// endpoint, rendering SSML with express-as style and prosody controls.
type AzureSynthesizer struct {
	cfg        AzureConfig
	endpoint   string
	httpClient *http.Client
}

func NewAzureSynthesizer(cfg AzureConfig) (*AzureSynthesizer, error) {
	cfg = cfg.withDefaults()
	if cfg.Region == "" {
		return nil, fmt.Errorf("speech: azure region is required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("speech: azure key is required")
	}
	return &AzureSynthesizer{
		cfg:      cfg,
		endpoint: fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", cfg.Region),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

func (a *AzureSynthesizer) Synthesize(ctx context.Context, text string, opts VoiceOptions) ([]byte, error) {
	body := renderSSML(text, opts)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("speech: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.Key)
	req.Header.Set("X-Microsoft-OutputFormat", a.cfg.OutputFormat)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: http %d: %s", ErrSynthesisFailed, resp.StatusCode, string(msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrSynthesisFailed, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio response", ErrSynthesisFailed)
	}
	return audio, nil
}

// renderSSML builds the SSML document for one utterance.
func renderSSML(text string, opts VoiceOptions) string {
	opts = opts.withDefaults()

	var b bytes.Buffer
	b.WriteString(`<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xmlns:mstts='https://www.w3.org/2001/mstts' xml:lang='en-US'>`)
	fmt.Fprintf(&b, `<voice name='%s'>`, opts.Voice)
	fmt.Fprintf(&b, `<mstts:express-as style='%s'>`, opts.Style)
	fmt.Fprintf(&b, `<prosody rate='%s' pitch='%s' volume='%s'>`, opts.Rate, opts.Pitch, opts.Volume)
	b.WriteString(escapeSSMLText(text))
	b.WriteString(`</prosody></mstts:express-as></voice></speak>`)
	return b.String()
}

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

func escapeSSMLText(s string) string {
	return ssmlEscaper.Replace(s)
}
