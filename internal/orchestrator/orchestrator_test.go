package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"voiceagent-platform/internal/cache"
	"voiceagent-platform/internal/history"
	"voiceagent-platform/internal/notify"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/internal/speech"
)

// scriptedCompleter returns canned replies in order, streaming each as
// fragments through the callback.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	calls   int
	err     error
}

func (c *scriptedCompleter) Complete(ctx context.Context, messages []speech.Message, opts speech.CompletionOptions, onFragment func(string)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	if c.calls >= len(c.replies) {
		return "", fmt.Errorf("no scripted reply for call %d", c.calls)
	}
	reply := c.replies[c.calls]
	c.calls++

	// Stream in two fragments to exercise clause accumulation.
	mid := len(reply) / 2
	if onFragment != nil {
		onFragment(reply[:mid])
		onFragment(reply[mid:])
	}
	return reply, nil
}

func (c *scriptedCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeSynthesizer returns audio derived from the text, with optional
// per-text delays to simulate out-of-order completion.
type fakeSynthesizer struct {
	mu     sync.Mutex
	delays map[string]time.Duration
	fail   bool
	calls  int
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string, opts speech.VoiceOptions) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	delay := f.delays[text]
	fail := f.fail
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		return nil, speech.ErrSynthesisFailed
	}
	return []byte("audio:" + text), nil
}

func testOrchestrator(t *testing.T, completer speech.Completer, synth speech.Synthesizer) (*Orchestrator, *session.Registry, *history.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := history.NewMemoryStore()
	registry := session.NewRegistry(logger, store, notify.NopPublisher{}, session.RegistryConfig{})
	t.Cleanup(registry.Stop)

	o := New(logger, registry, completer, synth, cache.New(0, 0), nil, Config{})
	return o, registry, store
}

func connectSession(t *testing.T, r *session.Registry, id string) *session.CallSession {
	t.Helper()
	s, err := r.Create(id, "+15550001111")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	s.BeginDialing()
	s.MarkAnswered()
	s.MarkConnected()
	return s
}

func TestFragmentAccumulationBoundedAtThree(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"How many cases?"}}
	o, r, _ := testOrchestrator(t, completer, &fakeSynthesizer{})
	connectSession(t, r, "sess-1")

	ctx := context.Background()
	partial := speech.TranscriptResult{Text: "I", IsFinal: false}
	if res, err := o.OnSpeechFragment(ctx, "sess-1", partial); err != nil || res != nil {
		t.Fatalf("expected waiting after fragment 1, got %v %v", res, err)
	}
	partial.Text = "need"
	if res, err := o.OnSpeechFragment(ctx, "sess-1", partial); err != nil || res != nil {
		t.Fatalf("expected waiting after fragment 2, got %v %v", res, err)
	}

	// Third non-final fragment forces the turn.
	partial.Text = "water"
	res, err := o.OnSpeechFragment(ctx, "sess-1", partial)
	if err != nil {
		t.Fatalf("expected forced turn, got %v", err)
	}
	if res == nil || res.Reply != "How many cases?" {
		t.Fatalf("expected reply, got %+v", res)
	}

	s, _ := r.Get("sess-1")
	conv := s.Conversation()
	if conv[0].Content != "I need water" {
		t.Fatalf("expected joined fragments, got %q", conv[0].Content)
	}
}

func TestFinalFragmentRunsImmediately(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"How many cases?"}}
	o, r, _ := testOrchestrator(t, completer, &fakeSynthesizer{})
	connectSession(t, r, "sess-1")

	res, err := o.OnSpeechFragment(context.Background(), "sess-1", speech.TranscriptResult{Text: "I need water", IsFinal: true})
	if err != nil || res == nil {
		t.Fatalf("expected immediate turn on final fragment, got %v %v", res, err)
	}
}

func TestCachedReplySkipsCompletion(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"How many cases would you like?"}}
	o, r, _ := testOrchestrator(t, completer, &fakeSynthesizer{})
	connectSession(t, r, "sess-1")
	connectSession(t, r, "sess-2")

	ctx := context.Background()
	first, err := o.RunTurn(ctx, "sess-1", "I need water")
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if first.Cached {
		t.Fatal("expected first turn uncached")
	}

	// Identical transcript in a second session hits the cache.
	second, err := o.RunTurn(ctx, "sess-2", "I need water")
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if !second.Cached {
		t.Fatal("expected second turn cached")
	}
	if second.Reply != first.Reply {
		t.Fatalf("expected identical reply, got %q vs %q", second.Reply, first.Reply)
	}
	if completer.callCount() != 1 {
		t.Fatalf("expected 1 completion call, got %d", completer.callCount())
	}
}

func TestClipsSequencedByClauseOrder(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"Excellent choice! I'll add 5 cases of bottled water at $20."}}
	// The first clause resolves last.
	synth := &fakeSynthesizer{delays: map[string]time.Duration{
		"Excellent choice!": 50 * time.Millisecond,
	}}
	o, r, _ := testOrchestrator(t, completer, synth)
	connectSession(t, r, "sess-1")

	res, err := o.RunTurn(context.Background(), "sess-1", "water please")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if len(res.Clips) != 2 {
		t.Fatalf("expected 2 clips, got %d: %+v", len(res.Clips), res.Clips)
	}
	if res.Clips[0].Text != "Excellent choice!" {
		t.Fatalf("expected clause order preserved, got %q first", res.Clips[0].Text)
	}
	if string(res.Clips[0].Audio) != "audio:Excellent choice!" {
		t.Fatalf("expected audio for first clause, got %q", res.Clips[0].Audio)
	}
}

func TestCompletionFailureDegradesTurn(t *testing.T) {
	completer := &scriptedCompleter{err: errors.New("upstream down")}
	o, r, _ := testOrchestrator(t, completer, &fakeSynthesizer{})
	s := connectSession(t, r, "sess-1")

	res, err := o.RunTurn(context.Background(), "sess-1", "I need water")
	if err != nil {
		t.Fatalf("expected degraded turn, not error: %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded flag")
	}
	if res.EndCall {
		t.Fatal("expected session to continue after degraded turn")
	}
	if len(res.Clips) == 0 {
		t.Fatal("expected spoken fallback clips")
	}

	conv := s.Conversation()
	if len(conv) != 2 || conv[1].Content != res.Reply {
		t.Fatalf("expected apology in transcript, got %+v", conv)
	}
}

func TestSynthesisFailureFallsBackToBuiltInVoice(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"Noted. Anything else?"}}
	o, r, _ := testOrchestrator(t, completer, &fakeSynthesizer{fail: true})
	connectSession(t, r, "sess-1")

	res, err := o.RunTurn(context.Background(), "sess-1", "two cases")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if res.Degraded {
		t.Fatal("synthesis failure must not degrade the whole turn")
	}
	for _, clip := range res.Clips {
		if !clip.Fallback || clip.Audio != nil {
			t.Fatalf("expected fallback clip, got %+v", clip)
		}
	}
}

func TestSynthesisResultsCached(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"Take care!", "Take care!"}}
	synth := &fakeSynthesizer{}
	o, r, _ := testOrchestrator(t, completer, synth)
	connectSession(t, r, "sess-1")

	ctx := context.Background()
	if _, err := o.RunTurn(ctx, "sess-1", "bye now friend"); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	firstCalls := synth.calls

	// Same clause text in a later turn reuses the cached audio.
	connectSession(t, r, "sess-2")
	if _, err := o.RunTurn(ctx, "sess-2", "so long then"); err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if synth.calls != firstCalls {
		t.Fatalf("expected no new synthesis calls, got %d then %d", firstCalls, synth.calls)
	}
}

func TestTimeoutLadderSpeaksAndCloses(t *testing.T) {
	o, r, _ := testOrchestrator(t, &scriptedCompleter{}, &fakeSynthesizer{})
	s := connectSession(t, r, "sess-1")

	ctx := context.Background()
	first, err := o.OnTimeout(ctx, "sess-1")
	if err != nil || first.EndCall {
		t.Fatalf("expected retry prompt, got %+v err=%v", first, err)
	}
	if first.Reply != "Hello? Are you still there?" {
		t.Fatalf("unexpected first prompt %q", first.Reply)
	}

	second, _ := o.OnTimeout(ctx, "sess-1")
	if second.EndCall {
		t.Fatal("expected second attempt to retry")
	}

	third, err := o.OnTimeout(ctx, "sess-1")
	if err != nil {
		t.Fatalf("third timeout: %v", err)
	}
	if !third.EndCall || third.EndReason != session.EndReasonTimeoutExhausted {
		t.Fatalf("expected exhaustion close, got %+v", third)
	}
	if s.TimeoutAttempts() != 3 {
		t.Fatalf("expected 3 attempts, got %d", s.TimeoutAttempts())
	}
}

func TestSpeechResetsLadderBetweenTimeouts(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"How many cases?"}}
	o, r, _ := testOrchestrator(t, completer, &fakeSynthesizer{})
	s := connectSession(t, r, "sess-1")

	ctx := context.Background()
	o.OnTimeout(ctx, "sess-1")
	o.OnTimeout(ctx, "sess-1")

	if _, err := o.RunTurn(ctx, "sess-1", "sorry, I'm here"); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if s.TimeoutAttempts() != 0 {
		t.Fatalf("expected ladder reset, got %d", s.TimeoutAttempts())
	}

	res, _ := o.OnTimeout(ctx, "sess-1")
	if res.Reply != "Hello? Are you still there?" {
		t.Fatalf("expected ladder restarted, got %q", res.Reply)
	}
}

func TestEndSessionCancelsPendingFragments(t *testing.T) {
	o, r, _ := testOrchestrator(t, &scriptedCompleter{}, &fakeSynthesizer{})
	connectSession(t, r, "sess-1")

	ctx := context.Background()
	o.OnSpeechFragment(ctx, "sess-1", speech.TranscriptResult{Text: "hello"})

	if err := o.EndSession(ctx, "sess-1", session.EndReasonOperator); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if _, err := o.OnSpeechFragment(ctx, "sess-1", speech.TranscriptResult{Text: "late", IsFinal: true}); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

// Full scenario: order placed across three turns, ended by phrase, persisted.
func TestEndToEndOrderScenario(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{
		"Great! How many cases of bottled water would you like?",
		"Perfect! I'll add 5 cases of bottled water at $20 to your order. Anything else?",
		"Wonderful! Your order is confirmed. Thank you for your time and have a great day!",
	}}
	o, r, store := testOrchestrator(t, completer, &fakeSynthesizer{})
	s := connectSession(t, r, "sess-1")

	ctx := context.Background()

	res, err := o.OnSpeechFragment(ctx, "sess-1", speech.TranscriptResult{Text: "I need water", IsFinal: true})
	if err != nil || res.EndCall {
		t.Fatalf("turn 1: %+v err=%v", res, err)
	}

	res, err = o.OnSpeechFragment(ctx, "sess-1", speech.TranscriptResult{Text: "5 cases", IsFinal: true})
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	orderState := s.OrderSnapshot()
	if len(orderState.Products) != 1 {
		t.Fatalf("expected 1 order line, got %+v", orderState.Products)
	}
	if orderState.Products[0].Product != "bottled water" || orderState.Products[0].Quantity != 5 {
		t.Fatalf("unexpected line item %+v", orderState.Products[0])
	}
	if orderState.TotalMinor != 10000 {
		t.Fatalf("expected total 10000, got %d", orderState.TotalMinor)
	}

	res, err = o.OnSpeechFragment(ctx, "sess-1", speech.TranscriptResult{Text: "that's all", IsFinal: true})
	if err != nil {
		t.Fatalf("turn 3: %v", err)
	}
	if !res.EndCall || res.EndReason != session.EndReasonEndingPhrase {
		t.Fatalf("expected ending phrase close, got %+v", res)
	}
	if !s.Flags().CustomerDone {
		t.Fatal("expected customer-done flag set")
	}

	if err := o.EndSession(ctx, "sess-1", res.EndReason); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if s.Status() != session.StatusEnded {
		t.Fatalf("expected ended, got %s", s.Status())
	}

	rec, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("expected record persisted, got %v", err)
	}
	if rec.Order.TotalMinor != 10000 {
		t.Fatalf("expected persisted total 10000, got %d", rec.Order.TotalMinor)
	}
	if len(rec.Transcript) != 6 {
		t.Fatalf("expected 6 transcript messages, got %d", len(rec.Transcript))
	}
	if !strings.Contains(rec.Transcript[5].Content, "have a great day") {
		t.Fatalf("expected closing reply persisted, got %q", rec.Transcript[5].Content)
	}
}
