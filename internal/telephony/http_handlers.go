package telephony

import (
	"errors"
	"net/http"

	"voiceagent-platform/internal/metrics"
	"voiceagent-platform/internal/orchestrator"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/internal/speech"
	"voiceagent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Webhook URL paths, relative to the public base URL. The provider posts
// here during a call; routes.go mounts them under the same paths.
const (
	PathAnswer  = "/webhooks/voice/answer"
	PathSpeech  = "/webhooks/voice/speech"
	PathPartial = "/webhooks/voice/partial"
	PathTimeout = "/webhooks/voice/timeout"
	PathStatus  = "/webhooks/voice/status"
)

// WebhookHandler converts provider webhooks to orchestrator calls and
// writes TwiML.
//
// No business logic here: what to say and when to hang up is decided by
// the orchestrator; this layer renders that decision as verbs.
type WebhookHandler struct {
	Registry     *session.Registry
	Orchestrator *orchestrator.Orchestrator
	Audio        *speech.AudioStore
	Metrics      *metrics.Metrics

	// BaseURL is the public origin the provider reaches us on; audio URLs
	// and callback actions are built from it.
	BaseURL  string
	Greeting string
	Language string

	// GatherTimeoutSeconds is the no-speech window before the timeout
	// webhook fires. Zero means the TwiML default.
	GatherTimeoutSeconds int
}

// HandleAnswer serves the initial TwiML when the callee picks up: play the
// greeting and start listening.
func (h WebhookHandler) HandleAnswer(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseVoiceForm(c.Request)
	if err != nil {
		log.Warn("voice webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	s, ok := h.Registry.GetByProviderCallID(form.CallSid)
	if !ok {
		log.Warn("answer webhook for unknown call", "call_sid", form.CallSid)
		h.writeHangup(c)
		return
	}
	if err := s.MarkConnected(); err != nil {
		log.Warn("session connect transition failed", "session_id", s.ID, "err", err)
		h.writeHangup(c)
		return
	}

	result, err := h.Orchestrator.Greet(c.Request.Context(), s.ID, h.Greeting)
	if err != nil {
		log.Error("greeting failed", "session_id", s.ID, "err", err)
		h.writeHangup(c)
		return
	}

	h.writeTurn(c, s.ID, result)
}

// HandleSpeech receives the final speech result of a Gather and runs one
// conversation turn.
func (h WebhookHandler) HandleSpeech(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseVoiceForm(c.Request)
	if err != nil {
		log.Warn("voice webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	s, ok := h.Registry.GetByProviderCallID(form.CallSid)
	if !ok {
		log.Warn("speech webhook for unknown call", "call_sid", form.CallSid)
		h.writeHangup(c)
		return
	}

	// An empty result means the gather window closed without usable
	// speech; fall into the timeout ladder.
	if form.SpeechResult == "" {
		h.writeTwiML(c, NewResponse().Redirect(h.BaseURL+PathTimeout))
		return
	}

	result, err := h.Orchestrator.OnSpeechFragment(c.Request.Context(), s.ID, speech.TranscriptResult{
		Text:       form.SpeechResult,
		Confidence: form.Confidence,
		IsFinal:    true,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrSessionEnded) || errors.Is(err, session.ErrSessionNotFound) {
			h.writeHangup(c)
			return
		}
		log.Error("turn failed", "session_id", s.ID, "err", err)
		h.writeHangup(c)
		return
	}
	if result == nil {
		// Fragment buffered, keep listening.
		h.writeListen(c, NewResponse())
		return
	}

	if h.Metrics != nil {
		h.Metrics.TurnsCompleted.Inc()
		if result.Degraded {
			h.Metrics.TurnsDegraded.Inc()
		}
	}
	h.writeTurn(c, s.ID, result)
}

// HandlePartial receives interim speech while the callee is still talking.
// It only resets the no-speech ladder; the turn runs on the final result.
func (h WebhookHandler) HandlePartial(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseVoiceForm(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	if s, ok := h.Registry.GetByProviderCallID(form.CallSid); ok {
		s.RecordSpeech()
		log.Debug("partial speech", "session_id", s.ID, "unstable", form.UnstableSpeechResult)
	}
	c.Status(http.StatusNoContent)
}

// HandleTimeout fires when a Gather closed with no speech at all.
func (h WebhookHandler) HandleTimeout(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseVoiceForm(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	s, ok := h.Registry.GetByProviderCallID(form.CallSid)
	if !ok {
		h.writeHangup(c)
		return
	}

	result, err := h.Orchestrator.OnTimeout(c.Request.Context(), s.ID)
	if err != nil {
		log.Warn("timeout handling failed", "session_id", s.ID, "err", err)
		h.writeHangup(c)
		return
	}
	if h.Metrics != nil {
		h.Metrics.TimeoutAttempts.Inc()
	}

	h.writeTurn(c, s.ID, result)
}

// HandleStatus receives call lifecycle callbacks. Terminal statuses tear
// the session down; the registry keeps it resolvable through the grace
// period for stragglers.
func (h WebhookHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseStatusForm(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	s, ok := h.Registry.GetByProviderCallID(form.CallSid)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	case form.CallStatus == CallStatusInProgress:
		// Answered; the answer webhook completes the transition.
		_ = s.MarkAnswered()
	case form.CallStatus.Terminal():
		reason := session.EndReasonProviderComplete
		if form.CallStatus.Failed() {
			reason = session.EndReasonProviderFailed
		}
		if err := h.Orchestrator.EndSession(c.Request.Context(), s.ID, reason); err != nil {
			log.Warn("session teardown failed", "session_id", s.ID, "err", err)
		}
		removed := h.Audio.RemoveSession(s.ID)
		if h.Metrics != nil && form.CallDuration > 0 {
			h.Metrics.CallDuration.Observe(float64(form.CallDuration))
		}
		log.Info("call ended",
			"session_id", s.ID,
			"call_status", string(form.CallStatus),
			"duration_s", form.CallDuration,
			"audio_removed", removed,
		)
	}

	c.Status(http.StatusNoContent)
}

// HandleAudio serves a synthesized artifact for provider playback.
func (h WebhookHandler) HandleAudio(c *gin.Context) {
	path, ok := h.Audio.Path(c.Param("name"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "audio not found"})
		return
	}
	c.Header("Content-Type", "audio/basic")
	c.File(path)
}

// writeTurn renders a turn result: the reply clips, then either a hangup
// or a new listening window.
func (h WebhookHandler) writeTurn(c *gin.Context, sessionID string, result *orchestrator.TurnResult) {
	log := logger.FromGin(c)
	resp := NewResponse()

	if result.EndCall {
		// Speak the close in full, pause briefly, then hang up. Teardown
		// happens now; played audio outlives the session via the TTL
		// sweeper, not the session index.
		h.appendClips(c, resp, sessionID, result.Clips)
		resp.Pause(1).Hangup()
		if err := h.Orchestrator.EndSession(c.Request.Context(), sessionID, result.EndReason); err != nil {
			log.Warn("session teardown failed", "session_id", sessionID, "err", err)
		}
		h.writeTwiML(c, resp)
		return
	}

	resp.Gather(h.gatherOptions(), func(r *Response) {
		h.appendClips(c, r, sessionID, result.Clips)
	})
	resp.Redirect(h.BaseURL + PathTimeout)
	h.writeTwiML(c, resp)
}

// writeListen renders a bare listening window with no audio.
func (h WebhookHandler) writeListen(c *gin.Context, resp *Response) {
	resp.Gather(h.gatherOptions(), nil)
	resp.Redirect(h.BaseURL + PathTimeout)
	h.writeTwiML(c, resp)
}

// appendClips turns reply clips into Play verbs backed by the audio store,
// falling back to provider speech when a clip has no audio.
func (h WebhookHandler) appendClips(c *gin.Context, resp *Response, sessionID string, clips []orchestrator.Clip) {
	log := logger.FromGin(c)
	for _, clip := range clips {
		if clip.Fallback || len(clip.Audio) == 0 {
			resp.Say(clip.Text)
			continue
		}
		name, err := h.Audio.Put(sessionID, clip.Audio)
		if err != nil {
			log.Warn("audio store write failed", "session_id", sessionID, "err", err)
			resp.Say(clip.Text)
			continue
		}
		resp.Play(h.BaseURL + "/audio/" + name)
	}
}

func (h WebhookHandler) gatherOptions() GatherOptions {
	return GatherOptions{
		Action:          h.BaseURL + PathSpeech,
		PartialCallback: h.BaseURL + PathPartial,
		TimeoutSeconds:  h.GatherTimeoutSeconds,
		Language:        h.Language,
		BargeIn:         true,
	}
}

func (h WebhookHandler) writeHangup(c *gin.Context) {
	h.writeTwiML(c, NewResponse().Hangup())
}

func (h WebhookHandler) writeTwiML(c *gin.Context, resp *Response) {
	twiml, err := resp.Render()
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}
