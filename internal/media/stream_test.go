package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"voiceagent-platform/internal/cache"
	"voiceagent-platform/internal/history"
	"voiceagent-platform/internal/notify"
	"voiceagent-platform/internal/orchestrator"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/internal/speech"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type stubTranscriber struct {
	text string
}

func (s stubTranscriber) Transcribe(ctx context.Context, pcm []byte) (speech.TranscriptResult, error) {
	if len(pcm) == 0 {
		return speech.TranscriptResult{}, speech.ErrNoSpeech
	}
	return speech.TranscriptResult{Text: s.text, Confidence: 0.9, IsFinal: true}, nil
}

type stubCompleter struct{ reply string }

func (c stubCompleter) Complete(ctx context.Context, messages []speech.Message, opts speech.CompletionOptions, onFragment func(string)) (string, error) {
	if onFragment != nil {
		onFragment(c.reply)
	}
	return c.reply, nil
}

type stubSynthesizer struct{}

func (stubSynthesizer) Synthesize(ctx context.Context, text string, opts speech.VoiceOptions) ([]byte, error) {
	return []byte("audio:" + text), nil
}

func dialStream(t *testing.T, h *Handler) (*websocket.Conn, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/media", h.HandleStream)
	srv := httptest.NewServer(router)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/media"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial media stream: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestMediaStreamTranscribesAndRepliesWithAudio(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := history.NewMemoryStore()
	registry := session.NewRegistry(log, store, notify.NopPublisher{}, session.RegistryConfig{})
	t.Cleanup(registry.Stop)

	orch := orchestrator.New(log, registry,
		stubCompleter{reply: "How many cases would you like?"},
		stubSynthesizer{}, cache.New(0, 0), nil, orchestrator.Config{})

	s, err := registry.Create("sess-1", "+15557654321")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	s.BeginDialing()
	s.MarkAnswered()
	s.MarkConnected()
	if err := registry.BindProviderCallID("sess-1", "CA1"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	h := NewHandler(registry, orch, stubTranscriber{text: "five cases of bottled water"}, nil, StreamConfig{
		// Tiny window so one frame triggers a transcription.
		WindowBytes: 16,
	})
	conn, cleanup := dialStream(t, h)
	defer cleanup()

	start := streamEvent{Event: "start", Start: &startPayload{StreamSid: "MS1", CallSid: "CA1"}}
	if err := conn.WriteJSON(start); err != nil {
		t.Fatalf("write start: %v", err)
	}

	payload := base64.StdEncoding.EncodeToString(make([]byte, 64))
	media := streamEvent{Event: "media", Media: &mediaPayload{Payload: payload}}
	if err := conn.WriteJSON(media); err != nil {
		t.Fatalf("write media: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected reply frame, got %v", err)
	}
	var reply streamEvent
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Event != "media" || reply.StreamSid != "MS1" {
		t.Fatalf("unexpected reply envelope: %+v", reply)
	}
	audioBytes, err := base64.StdEncoding.DecodeString(reply.Media.Payload)
	if err != nil {
		t.Fatalf("decode reply audio: %v", err)
	}
	if !strings.HasPrefix(string(audioBytes), "audio:") {
		t.Fatalf("unexpected reply audio: %q", audioBytes)
	}

	if err := conn.WriteJSON(streamEvent{Event: "stop"}); err != nil {
		t.Fatalf("write stop: %v", err)
	}

	// The turn must have landed in the transcript.
	deadline := time.Now().Add(2 * time.Second)
	for {
		transcript := s.Transcript()
		if len(transcript) >= 2 {
			if transcript[0].Role != session.RoleUser {
				t.Fatalf("expected user message first, got %+v", transcript)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("transcript never populated: %+v", transcript)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// sequencedTranscriber answers windows by arrival index, stalling the first
// one to tempt later windows into overtaking it.
type sequencedTranscriber struct {
	mu    sync.Mutex
	calls int
}

func (s *sequencedTranscriber) Transcribe(ctx context.Context, pcm []byte) (speech.TranscriptResult, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()

	switch n {
	case 1:
		time.Sleep(150 * time.Millisecond)
		return speech.TranscriptResult{Text: "first-window", Confidence: 0.9}, nil
	case 2:
		return speech.TranscriptResult{Text: "second-window", Confidence: 0.9}, nil
	default:
		return speech.TranscriptResult{Text: "tail", Confidence: 0.9, IsFinal: true}, nil
	}
}

func TestMediaStreamWindowsKeepArrivalOrder(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := history.NewMemoryStore()
	registry := session.NewRegistry(log, store, notify.NopPublisher{}, session.RegistryConfig{})
	t.Cleanup(registry.Stop)

	orch := orchestrator.New(log, registry,
		stubCompleter{reply: "Noted."},
		stubSynthesizer{}, cache.New(0, 0), nil, orchestrator.Config{})

	s, err := registry.Create("sess-1", "+15557654321")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	s.BeginDialing()
	s.MarkAnswered()
	s.MarkConnected()
	if err := registry.BindProviderCallID("sess-1", "CA1"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	h := NewHandler(registry, orch, &sequencedTranscriber{}, nil, StreamConfig{
		// One media frame per transcription window.
		WindowBytes: 16,
	})
	conn, cleanup := dialStream(t, h)
	defer cleanup()

	start := streamEvent{Event: "start", Start: &startPayload{StreamSid: "MS1", CallSid: "CA1"}}
	if err := conn.WriteJSON(start); err != nil {
		t.Fatalf("write start: %v", err)
	}

	payload := base64.StdEncoding.EncodeToString(make([]byte, 64))
	for i := 0; i < 3; i++ {
		if err := conn.WriteJSON(streamEvent{Event: "media", Media: &mediaPayload{Payload: payload}}); err != nil {
			t.Fatalf("write media %d: %v", i, err)
		}
	}
	if err := conn.WriteJSON(streamEvent{Event: "stop"}); err != nil {
		t.Fatalf("write stop: %v", err)
	}

	// The final window closes the turn; its user line must join the
	// fragments in the order the audio arrived, slow window included.
	deadline := time.Now().Add(3 * time.Second)
	for {
		transcript := s.Transcript()
		if len(transcript) >= 1 && transcript[0].Role == session.RoleUser {
			if got := transcript[0].Content; got != "first-window second-window tail" {
				t.Fatalf("expected fragments in arrival order, got %q", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("transcript never populated: %+v", transcript)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMediaStreamUnknownCallCloses(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	registry := session.NewRegistry(log, history.NewMemoryStore(), notify.NopPublisher{}, session.RegistryConfig{})
	t.Cleanup(registry.Stop)
	orch := orchestrator.New(log, registry, stubCompleter{reply: "x"}, stubSynthesizer{}, cache.New(0, 0), nil, orchestrator.Config{})

	h := NewHandler(registry, orch, stubTranscriber{text: "x"}, nil, StreamConfig{})
	conn, cleanup := dialStream(t, h)
	defer cleanup()

	start := streamEvent{Event: "start", Start: &startPayload{StreamSid: "MS1", CallSid: "CA404"}}
	if err := conn.WriteJSON(start); err != nil {
		t.Fatalf("write start: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection closed for unknown call")
	}
}
