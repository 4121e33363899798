// Package speech defines the external speech capabilities the pipeline
// consumes: transcription, completion, and synthesis. The pipeline invokes
// them; it never implements a recognizer, model, or synthesis engine.
package speech

import (
	"context"
	"errors"
)

var (
	// ErrNoSpeech reports that a transcription attempt produced no text.
	// The session layer folds it into the no-speech timeout path.
	ErrNoSpeech = errors.New("speech: no speech detected")

	// ErrSynthesisFailed wraps synthesizer failures; callers fall back to
	// the provider's built-in voice instead of aborting the turn.
	ErrSynthesisFailed = errors.New("speech: synthesis failed")
)

// Message is one role/content pair in a completion prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions tunes a single completion call. Model choice and prompt
// wording are configuration, not code paths.
type CompletionOptions struct {
	Temperature float32
	MaxTokens   int32
}

// Completer produces an agent reply from the conversation so far. Fragments
// are delivered through onFragment as they stream in; the full reply is
// returned once the stream ends.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions, onFragment func(text string)) (string, error)
}

// TranscriptResult is one transcription outcome for an audio chunk.
type TranscriptResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
}

// Transcriber converts PCM16LE audio into text. Invoked continuously while
// a turn is open; results may be partial until IsFinal.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (TranscriptResult, error)
}

// VoiceOptions selects how synthesized speech sounds. Identical text with
// different options must produce distinct cache entries.
type VoiceOptions struct {
	Voice  string `json:"voice"`
	Rate   string `json:"rate"`
	Pitch  string `json:"pitch"`
	Volume string `json:"volume"`
	Style  string `json:"style"`
}

// DefaultVoiceOptions is the agent's standard speaking voice.
func DefaultVoiceOptions() VoiceOptions {
	return VoiceOptions{
		Voice:  "en-US-AriaNeural",
		Rate:   "0%",
		Pitch:  "+5%",
		Volume: "medium",
		Style:  "conversation",
	}
}

func (o VoiceOptions) withDefaults() VoiceOptions {
	def := DefaultVoiceOptions()
	if o.Voice == "" {
		o.Voice = def.Voice
	}
	if o.Rate == "" {
		o.Rate = def.Rate
	}
	if o.Pitch == "" {
		o.Pitch = def.Pitch
	}
	if o.Volume == "" {
		o.Volume = def.Volume
	}
	if o.Style == "" {
		o.Style = def.Style
	}
	return o
}

// CacheKey serializes the options for response-cache keying.
func (o VoiceOptions) CacheKey() string {
	o = o.withDefaults()
	return o.Voice + "|" + o.Rate + "|" + o.Pitch + "|" + o.Volume + "|" + o.Style
}

// Synthesizer converts text into audio bytes in the provider's configured
// output format.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts VoiceOptions) ([]byte, error)
}
