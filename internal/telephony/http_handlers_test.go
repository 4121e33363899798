package telephony

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"voiceagent-platform/internal/agent"
	"voiceagent-platform/internal/cache"
	"voiceagent-platform/internal/history"
	"voiceagent-platform/internal/notify"
	"voiceagent-platform/internal/orchestrator"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/internal/speech"

	"github.com/gin-gonic/gin"
)

type cannedCompleter struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (c *cannedCompleter) Complete(ctx context.Context, messages []speech.Message, opts speech.CompletionOptions, onFragment func(string)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reply := c.replies[c.calls%len(c.replies)]
	c.calls++
	if onFragment != nil {
		onFragment(reply)
	}
	return reply, nil
}

type echoSynthesizer struct{}

func (echoSynthesizer) Synthesize(ctx context.Context, text string, opts speech.VoiceOptions) ([]byte, error) {
	return []byte("audio:" + text), nil
}

type webhookFixture struct {
	router   *gin.Engine
	registry *session.Registry
	store    *history.MemoryStore
	audio    *speech.AudioStore
}

func newWebhookFixture(t *testing.T, replies []string) *webhookFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := history.NewMemoryStore()
	registry := session.NewRegistry(log, store, notify.NopPublisher{}, session.RegistryConfig{})
	t.Cleanup(registry.Stop)

	orch := orchestrator.New(log, registry, &cannedCompleter{replies: replies}, echoSynthesizer{}, cache.New(0, 0), nil, orchestrator.Config{})

	audio, err := speech.NewAudioStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("audio store: %v", err)
	}

	h := WebhookHandler{
		Registry:     registry,
		Orchestrator: orch,
		Audio:        audio,
		BaseURL:      "https://agent.example.com",
		Greeting:     agent.Greeting,
	}

	router := gin.New()
	router.POST(PathAnswer, h.HandleAnswer)
	router.POST(PathSpeech, h.HandleSpeech)
	router.POST(PathPartial, h.HandlePartial)
	router.POST(PathTimeout, h.HandleTimeout)
	router.POST(PathStatus, h.HandleStatus)
	router.GET("/audio/:name", h.HandleAudio)

	return &webhookFixture{router: router, registry: registry, store: store, audio: audio}
}

func (f *webhookFixture) dialSession(t *testing.T, id, callSid string) *session.CallSession {
	t.Helper()
	s, err := f.registry.Create(id, "+15557654321")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := s.BeginDialing(); err != nil {
		t.Fatalf("begin dialing: %v", err)
	}
	if err := f.registry.BindProviderCallID(id, callSid); err != nil {
		t.Fatalf("bind call sid: %v", err)
	}
	return s
}

func (f *webhookFixture) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAnswerWebhookSpeaksGreetingAndListens(t *testing.T) {
	f := newWebhookFixture(t, []string{"How many cases would you like?"})
	s := f.dialSession(t, "sess-1", "CA1")

	w := f.post(t, PathAnswer, "CallSid=CA1&CallStatus=in-progress")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Fatalf("expected xml content type, got %q", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, "<Gather") {
		t.Fatalf("expected Gather in greeting twiml:\n%s", body)
	}
	if !strings.Contains(body, "https://agent.example.com/audio/") {
		t.Fatalf("expected hosted audio url:\n%s", body)
	}
	if s.Status() != session.StatusConnected {
		t.Fatalf("expected connected, got %q", s.Status())
	}

	transcript := s.Transcript()
	if len(transcript) != 1 || transcript[0].Content != agent.Greeting {
		t.Fatalf("expected greeting in transcript, got %+v", transcript)
	}
}

func TestSpeechWebhookRunsTurn(t *testing.T) {
	f := newWebhookFixture(t, []string{"I'll add 5 cases of Bottled Water at $20 to your order."})
	s := f.dialSession(t, "sess-1", "CA1")
	s.MarkAnswered()
	s.MarkConnected()

	w := f.post(t, PathSpeech, "CallSid=CA1&SpeechResult=Five+cases+of+bottled+water&Confidence=0.9")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := w.Body.String()
	if !strings.Contains(body, "<Gather") {
		t.Fatalf("expected next listening window:\n%s", body)
	}
	if strings.Contains(body, "<Hangup") {
		t.Fatalf("expected call to continue:\n%s", body)
	}

	order := s.OrderSnapshot()
	if len(order.Products) != 1 || order.TotalMinor != 10000 {
		t.Fatalf("expected extracted order, got %+v", order)
	}
}

func TestSpeechWebhookEndingPhraseHangsUp(t *testing.T) {
	f := newWebhookFixture(t, []string{"Thank you for your order. Have a great day!"})
	s := f.dialSession(t, "sess-1", "CA1")
	s.MarkAnswered()
	s.MarkConnected()

	w := f.post(t, PathSpeech, "CallSid=CA1&SpeechResult=That+is+all+thanks&Confidence=0.9")
	body := w.Body.String()
	if !strings.Contains(body, "<Hangup") {
		t.Fatalf("expected hangup:\n%s", body)
	}
	if !strings.Contains(body, "<Pause") {
		t.Fatalf("expected pause before hangup:\n%s", body)
	}
	if strings.Index(body, "<Hangup") < strings.Index(body, "audio/") {
		t.Fatalf("expected audio before hangup:\n%s", body)
	}

	if !s.Ended() {
		t.Fatal("expected session ended")
	}
	if _, err := f.store.Get(context.Background(), "sess-1"); err != nil {
		t.Fatalf("expected persisted record, got %v", err)
	}
}

func TestSpeechWebhookEmptyResultRedirectsToTimeout(t *testing.T) {
	f := newWebhookFixture(t, []string{"unused"})
	s := f.dialSession(t, "sess-1", "CA1")
	s.MarkAnswered()
	s.MarkConnected()

	w := f.post(t, PathSpeech, "CallSid=CA1")
	if !strings.Contains(w.Body.String(), "<Redirect method=\"POST\">https://agent.example.com"+PathTimeout) {
		t.Fatalf("expected redirect to timeout:\n%s", w.Body.String())
	}
}

func TestTimeoutWebhookLadderThenHangup(t *testing.T) {
	f := newWebhookFixture(t, []string{"unused"})
	s := f.dialSession(t, "sess-1", "CA1")
	s.MarkAnswered()
	s.MarkConnected()

	for i := 0; i < 2; i++ {
		w := f.post(t, PathTimeout, "CallSid=CA1")
		if strings.Contains(w.Body.String(), "<Hangup") {
			t.Fatalf("expected retry on attempt %d:\n%s", i+1, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "<Gather") {
			t.Fatalf("expected listening window on attempt %d:\n%s", i+1, w.Body.String())
		}
	}

	w := f.post(t, PathTimeout, "CallSid=CA1")
	if !strings.Contains(w.Body.String(), "<Hangup") {
		t.Fatalf("expected hangup at exhaustion:\n%s", w.Body.String())
	}
	if !s.Ended() {
		t.Fatal("expected session ended after timeout exhaustion")
	}
	if _, reason := s.EndedAt(); reason != session.EndReasonTimeoutExhausted {
		t.Fatalf("unexpected end reason %q", reason)
	}
}

func TestPartialWebhookResetsTimeoutLadder(t *testing.T) {
	f := newWebhookFixture(t, []string{"unused"})
	s := f.dialSession(t, "sess-1", "CA1")
	s.MarkAnswered()
	s.MarkConnected()

	f.post(t, PathTimeout, "CallSid=CA1")
	if s.TimeoutAttempts() != 1 {
		t.Fatalf("expected 1 attempt, got %d", s.TimeoutAttempts())
	}

	w := f.post(t, PathPartial, "CallSid=CA1&UnstableSpeechResult=hold+on")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if s.TimeoutAttempts() != 0 {
		t.Fatalf("expected ladder reset, got %d", s.TimeoutAttempts())
	}
}

func TestStatusWebhookCompletedFinalizes(t *testing.T) {
	f := newWebhookFixture(t, []string{"unused"})
	s := f.dialSession(t, "sess-1", "CA1")
	s.MarkAnswered()
	s.MarkConnected()

	name, err := f.audio.Put("sess-1", []byte("audio"))
	if err != nil {
		t.Fatalf("put audio: %v", err)
	}

	w := f.post(t, PathStatus, "CallSid=CA1&CallStatus=completed&CallDuration=42")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if !s.Ended() {
		t.Fatal("expected session ended")
	}
	if _, reason := s.EndedAt(); reason != session.EndReasonProviderComplete {
		t.Fatalf("unexpected end reason %q", reason)
	}
	if _, ok := f.audio.Path(name); ok {
		t.Fatal("expected session audio removed")
	}
}

func TestStatusWebhookFailureReason(t *testing.T) {
	f := newWebhookFixture(t, []string{"unused"})
	s := f.dialSession(t, "sess-1", "CA1")

	f.post(t, PathStatus, "CallSid=CA1&CallStatus=no-answer")
	if _, reason := s.EndedAt(); reason != session.EndReasonProviderFailed {
		t.Fatalf("unexpected end reason %q", reason)
	}
}

func TestUnknownCallSidHangsUp(t *testing.T) {
	f := newWebhookFixture(t, []string{"unused"})

	w := f.post(t, PathSpeech, "CallSid=CA404&SpeechResult=hello")
	if !strings.Contains(w.Body.String(), "<Hangup") {
		t.Fatalf("expected hangup for unknown call:\n%s", w.Body.String())
	}
}

func TestAudioEndpointServesArtifact(t *testing.T) {
	f := newWebhookFixture(t, []string{"unused"})
	name, err := f.audio.Put("sess-1", []byte("mulaw-bytes"))
	if err != nil {
		t.Fatalf("put audio: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/audio/"+name, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "mulaw-bytes" {
		t.Fatalf("unexpected body: %q", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/audio/missing.mulaw", nil)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
