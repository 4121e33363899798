// Package orchestrator drives one conversational turn end to end: accumulate
// transcription fragments, produce a streamed completion, synthesize audio
// per clause, scan for call endings, and extract the order. It repeats this
// loop per session until the session ends.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"voiceagent-platform/internal/cache"
	"voiceagent-platform/internal/metrics"
	"voiceagent-platform/internal/order"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/internal/speech"
)

// ErrSessionEnded reports a turn attempted on, or cancelled by, an ended
// session. Its partial results are discarded.
var ErrSessionEnded = errors.New("orchestrator: session ended")

// DefaultMaxFragments bounds how many non-final transcription fragments
// accumulate before the turn is forced final.
const DefaultMaxFragments = 3

// Recommender suggests a related product for upsell after a confirmed line
// item. Optional; nil disables recommendations.
type Recommender interface {
	Related(product string) (string, bool)
}

// Config tunes the turn loop.
type Config struct {
	MaxFragments int
	Completion   speech.CompletionOptions
	Voice        speech.VoiceOptions

	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Metrics
}

func (c Config) withDefaults() Config {
	out := c
	if out.MaxFragments <= 0 {
		out.MaxFragments = DefaultMaxFragments
	}
	return out
}

// Clip is one synthesized piece of the reply, in clause order. When
// Fallback is set synthesis failed and the text must be spoken by the
// telephony provider's built-in voice instead.
type Clip struct {
	Text     string
	Audio    []byte
	Fallback bool
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	Reply string
	Clips []Clip

	Cached   bool
	Degraded bool

	// EndCall instructs the caller to end the session after the audio
	// finishes playing, plus a short pause, never mid-sentence.
	EndCall   bool
	EndReason session.EndReason
}

// Orchestrator binds the codec path, transcription, completion, and
// synthesis into the per-call turn loop. Safe for concurrent use across
// sessions; turns within one session are sequential by contract.
type Orchestrator struct {
	logger      *slog.Logger
	registry    *session.Registry
	completer   speech.Completer
	synthesizer speech.Synthesizer
	cache       *cache.ResponseCache
	recommender Recommender
	cfg         Config

	mu          sync.Mutex
	fragments   map[string][]string
	turnCancels map[string]context.CancelFunc
}

func New(logger *slog.Logger, registry *session.Registry, completer speech.Completer, synthesizer speech.Synthesizer, responseCache *cache.ResponseCache, recommender Recommender, cfg Config) *Orchestrator {
	return &Orchestrator{
		logger:      logger,
		registry:    registry,
		completer:   completer,
		synthesizer: synthesizer,
		cache:       responseCache,
		recommender: recommender,
		cfg:         cfg.withDefaults(),
		fragments:   make(map[string][]string),
		turnCancels: make(map[string]context.CancelFunc),
	}
}

// Greet speaks the fixed opening line when the callee answers. The greeting
// is identical across calls, so its synthesis is served from cache after the
// first call.
func (o *Orchestrator) Greet(ctx context.Context, sessionID, greeting string) (*TurnResult, error) {
	s, ok := o.registry.Get(sessionID)
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	if s.Ended() {
		return nil, ErrSessionEnded
	}

	result := &TurnResult{
		Reply: greeting,
		Clips: o.synthesizeAll(ctx, speech.SplitClauses(greeting)),
	}
	s.Append(session.RoleAssistant, greeting)
	return result, nil
}

// OnSpeechFragment feeds one transcription fragment into the session's open
// turn. The turn runs once the fragment is final or the fragment cap is
// reached; until then the result is nil.
func (o *Orchestrator) OnSpeechFragment(ctx context.Context, sessionID string, res speech.TranscriptResult) (*TurnResult, error) {
	s, ok := o.registry.Get(sessionID)
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	if s.Ended() {
		return nil, ErrSessionEnded
	}

	s.RecordSpeech()

	o.mu.Lock()
	o.fragments[sessionID] = append(o.fragments[sessionID], res.Text)
	pending := o.fragments[sessionID]
	final := res.IsFinal || len(pending) >= o.cfg.MaxFragments
	if final {
		delete(o.fragments, sessionID)
	}
	o.mu.Unlock()

	if !final {
		return nil, nil
	}
	return o.RunTurn(ctx, sessionID, strings.Join(pending, " "))
}

// RunTurn executes one full turn for final user speech.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID, userText string) (*TurnResult, error) {
	s, ok := o.registry.Get(sessionID)
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	if s.Ended() {
		return nil, ErrSessionEnded
	}

	turnStart := time.Now()
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.turnCancels[sessionID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.turnCancels, sessionID)
		o.mu.Unlock()
	}()

	s.RecordSpeech()
	s.UpdateOrder(func(st *order.State) {
		order.ScanUserSpeech(st, userText)
	})
	if containsDonePhrase(userText) {
		s.MarkCustomerDone()
	}
	if containsReorderPhrase(userText) {
		s.ConfirmReorder()
	}

	// The completion cache key is the transcript as it stood before this
	// turn plus the new user line, so Get and Put agree.
	completionKey := cache.NewKey(cache.KindCompletion, conversationKey(s, userText), "")
	s.Append(session.RoleUser, userText)

	result := &TurnResult{}

	if cached, ok := o.cache.Get(completionKey); ok {
		if m := o.cfg.Metrics; m != nil {
			m.CacheHits.WithLabelValues(string(cache.KindCompletion)).Inc()
		}
		result.Reply = string(cached)
		result.Cached = true
		result.Clips = o.synthesizeAll(turnCtx, speech.SplitClauses(result.Reply))
	} else {
		if m := o.cfg.Metrics; m != nil {
			m.CacheMisses.WithLabelValues(string(cache.KindCompletion)).Inc()
		}
		reply, clips, degraded := o.completeStreaming(turnCtx, s, userText)
		result.Reply = reply
		result.Clips = clips
		result.Degraded = degraded
	}

	if s.Ended() {
		// Cancelled mid-turn; discard results.
		return nil, ErrSessionEnded
	}

	o.applyReply(s, result)

	if !result.Cached && !result.Degraded {
		o.cache.Put(completionKey, []byte(result.Reply))
	}

	if m := o.cfg.Metrics; m != nil {
		m.TurnDuration.Observe(time.Since(turnStart).Seconds())
	}

	o.logger.Info("turn completed",
		slog.String("session_id", sessionID),
		slog.Int("clips", len(result.Clips)),
		slog.Bool("cached", result.Cached),
		slog.Bool("degraded", result.Degraded),
		slog.Bool("end_call", result.EndCall),
	)
	return result, nil
}

// completeStreaming runs the completion stream, fanning synthesis out per
// completed clause while text fragments continue to arrive. On completion
// failure it degrades to a single apology turn instead of aborting.
func (o *Orchestrator) completeStreaming(ctx context.Context, s *session.CallSession, userText string) (reply string, clips []Clip, degraded bool) {
	var (
		clipsMu sync.Mutex
		wg      sync.WaitGroup
		acc     speech.ClauseAccumulator
	)

	// Clause slots are claimed in text order at launch time, so audio is
	// sequenced by fragment order no matter which synthesis call resolves
	// first.
	launch := func(text string) {
		clipsMu.Lock()
		idx := len(clips)
		clips = append(clips, Clip{Text: text, Fallback: true})
		clipsMu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			clip := o.synthesizeClause(ctx, text)
			clipsMu.Lock()
			clips[idx] = clip
			clipsMu.Unlock()
		}()
	}

	messages := buildMessages(s)
	if m := o.cfg.Metrics; m != nil {
		m.CompletionRequests.Inc()
	}
	reply, err := o.completer.Complete(ctx, messages, o.cfg.Completion, func(fragment string) {
		for _, clause := range acc.Add(fragment) {
			launch(clause)
		}
	})
	if err != nil {
		if m := o.cfg.Metrics; m != nil {
			m.CompletionFailures.Inc()
		}
		o.logger.Error("completion failed, degrading turn",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
		wg.Wait()
		return fallbackReply, o.synthesizeAll(ctx, []string{fallbackReply}), true
	}
	if tail, ok := acc.Flush(); ok {
		launch(tail)
	}
	wg.Wait()
	return reply, clips, false
}

// synthesizeAll synthesizes clauses concurrently, preserving clause order
// in the returned slice.
func (o *Orchestrator) synthesizeAll(ctx context.Context, clauses []string) []Clip {
	clips := make([]Clip, len(clauses))
	var wg sync.WaitGroup
	for i, clause := range clauses {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			clips[i] = o.synthesizeClause(ctx, text)
		}(i, clause)
	}
	wg.Wait()
	return clips
}

// synthesizeClause produces audio for one clause, consulting the synthesis
// cache first. Failure yields a fallback clip spoken by the provider's
// built-in voice.
func (o *Orchestrator) synthesizeClause(ctx context.Context, text string) Clip {
	key := cache.NewKey(cache.KindSynthesis, text, o.cfg.Voice.CacheKey())
	if audio, ok := o.cache.Get(key); ok {
		if m := o.cfg.Metrics; m != nil {
			m.CacheHits.WithLabelValues(string(cache.KindSynthesis)).Inc()
		}
		return Clip{Text: text, Audio: audio}
	}

	if m := o.cfg.Metrics; m != nil {
		m.CacheMisses.WithLabelValues(string(cache.KindSynthesis)).Inc()
		m.SynthesisRequests.Inc()
	}
	audio, err := o.synthesizer.Synthesize(ctx, text, o.cfg.Voice)
	if err != nil {
		if m := o.cfg.Metrics; m != nil {
			m.SynthesisFailures.Inc()
		}
		o.logger.Warn("synthesis failed, using built-in voice",
			slog.String("error", err.Error()),
		)
		return Clip{Text: text, Fallback: true}
	}
	o.cache.Put(key, audio)
	return Clip{Text: text, Audio: audio}
}

// applyReply folds the completed reply into session state: ending-phrase
// scan, order extraction, upsell recommendation, transcript append.
func (o *Orchestrator) applyReply(s *session.CallSession, result *TurnResult) {
	if ContainsEndingPhrase(result.Reply) {
		result.EndCall = true
		result.EndReason = session.EndReasonEndingPhrase
	}

	var added []order.LineItem
	s.UpdateOrder(func(st *order.State) {
		before := len(st.Products)
		order.ScanReply(st, result.Reply)
		added = append(added, st.Products[before:]...)
	})

	if o.recommender != nil && !s.Flags().CustomerDone {
		for _, item := range added {
			if related, ok := o.recommender.Related(item.Product); ok {
				s.UpdateOrder(func(st *order.State) {
					st.AddRecommendation(related)
				})
				s.MarkUpsellAttempted()
				break
			}
		}
	}

	s.Append(session.RoleAssistant, result.Reply)
}

// OnTimeout handles one no-speech timeout: speak the ladder prompt for the
// attempt count, and at exhaustion close the call instead of retrying.
func (o *Orchestrator) OnTimeout(ctx context.Context, sessionID string) (*TurnResult, error) {
	s, ok := o.registry.Get(sessionID)
	if !ok {
		return nil, session.ErrSessionNotFound
	}

	attempts, exhausted, err := s.RecordTimeout()
	if err != nil {
		return nil, err
	}

	prompt := timeoutPrompt(attempts)
	result := &TurnResult{
		Reply: prompt,
		Clips: o.synthesizeAll(ctx, speech.SplitClauses(prompt)),
	}
	s.Append(session.RoleAssistant, prompt)

	if exhausted {
		result.EndCall = true
		result.EndReason = session.EndReasonTimeoutExhausted
	}

	o.logger.Info("no-speech timeout",
		slog.String("session_id", sessionID),
		slog.Int("attempts", attempts),
		slog.Bool("exhausted", exhausted),
	)
	return result, nil
}

// EndSession cancels any in-flight turn, drops pending fragments, and
// finalizes the session through the registry.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string, reason session.EndReason) error {
	o.mu.Lock()
	if cancel, ok := o.turnCancels[sessionID]; ok {
		cancel()
	}
	delete(o.fragments, sessionID)
	o.mu.Unlock()

	return o.registry.Finalize(ctx, sessionID, reason)
}

// conversationKey flattens the transcript-so-far plus the incoming user
// line into the completion cache key input.
func conversationKey(s *session.CallSession, userText string) string {
	var b strings.Builder
	for _, m := range s.Transcript() {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("user: ")
	b.WriteString(userText)
	return b.String()
}

func buildMessages(s *session.CallSession) []speech.Message {
	transcript := s.Transcript()
	out := make([]speech.Message, 0, len(transcript))
	for _, m := range transcript {
		out = append(out, speech.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
