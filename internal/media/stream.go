// Package media terminates the provider's bidirectional audio websocket:
// inbound μ-law frames are buffered, transcoded to PCM, and transcribed into
// the turn loop; reply audio is streamed back over the same socket.
package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"voiceagent-platform/internal/audio"
	"voiceagent-platform/internal/metrics"
	"voiceagent-platform/internal/orchestrator"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/internal/speech"
	"voiceagent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// DefaultWindowBytes is how much 16-bit 8 kHz PCM accumulates before a
// transcription window is dispatched: two seconds of audio.
const DefaultWindowBytes = 32000

// windowQueueDepth bounds pending transcription windows per connection. A
// full queue blocks the read loop, which is the backpressure we want.
const windowQueueDepth = 8

// StreamConfig tunes the per-connection pipeline.
type StreamConfig struct {
	WindowBytes int
	ChunkSize   int
	MaxBuffered int
}

func (c StreamConfig) withDefaults() StreamConfig {
	out := c
	if out.WindowBytes <= 0 {
		out.WindowBytes = DefaultWindowBytes
	}
	return out
}

// Handler upgrades provider media-stream connections.
type Handler struct {
	Registry     *session.Registry
	Orchestrator *orchestrator.Orchestrator
	Transcriber  speech.Transcriber
	Metrics      *metrics.Metrics
	Config       StreamConfig

	upgrader websocket.Upgrader
}

func NewHandler(registry *session.Registry, orch *orchestrator.Orchestrator, transcriber speech.Transcriber, m *metrics.Metrics, cfg StreamConfig) *Handler {
	return &Handler{
		Registry:     registry,
		Orchestrator: orch,
		Transcriber:  transcriber,
		Metrics:      m,
		Config:       cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The provider connects server-to-server with no Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// streamEvent is the provider's websocket frame envelope.
type streamEvent struct {
	Event string        `json:"event"`
	Start *startPayload `json:"start,omitempty"`
	Media *mediaPayload `json:"media,omitempty"`

	// StreamSid is set on outbound media frames.
	StreamSid string `json:"streamSid,omitempty"`
}

type startPayload struct {
	StreamSid string `json:"streamSid"`
	CallSid   string `json:"callSid"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

// HandleStream serves one media-stream connection for its whole lifetime.
func (h *Handler) HandleStream(c *gin.Context) {
	log := logger.FromGin(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("media stream upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	st := &stream{
		handler: h,
		conn:    conn,
		log:     log,
		ctx:     c.Request.Context(),
	}
	st.run()
}

// stream is the per-connection state machine.
type stream struct {
	handler *Handler
	conn    *websocket.Conn
	log     *slog.Logger
	ctx     context.Context

	streamSid string
	sessionID string
	buffer    *audio.StreamingBuffer

	// utterance accumulates transcoded PCM until a window dispatches.
	utterance []byte

	// windows feeds the single transcription worker. One worker per
	// connection keeps fragments reaching the turn loop in arrival order
	// and turns within the session strictly sequential.
	windows chan transcriptionWindow

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

type transcriptionWindow struct {
	pcm   []byte
	final bool
}

func (s *stream) run() {
	defer s.wg.Wait()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("media stream read ended", "err", err)
			}
			s.teardown()
			return
		}

		var ev streamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.log.Warn("media stream frame decode failed", "err", err)
			continue
		}

		switch ev.Event {
		case "connected":
			// Envelope handshake, nothing to do yet.
		case "start":
			s.onStart(ev.Start)
		case "media":
			s.onMedia(ev.Media)
		case "stop":
			s.onStop()
			return
		default:
			// Marks and unknown events are ignored.
		}
	}
}

func (s *stream) onStart(p *startPayload) {
	if p == nil {
		return
	}
	sess, ok := s.handler.Registry.GetByProviderCallID(p.CallSid)
	if !ok {
		s.log.Warn("media stream for unknown call", "call_sid", p.CallSid)
		_ = s.conn.Close()
		return
	}
	s.streamSid = p.StreamSid
	s.sessionID = sess.ID
	s.buffer = audio.NewStreamingBuffer(audio.BufferConfig{
		ChunkSize:     s.handler.Config.ChunkSize,
		MaxBufferSize: s.handler.Config.MaxBuffered,
		Sink:          s.onChunk,
		OnError: func(err error) {
			s.log.Warn("media chunk dropped", "session_id", s.sessionID, "err", err)
		},
	})
	s.windows = make(chan transcriptionWindow, windowQueueDepth)
	s.wg.Add(1)
	go s.transcribeLoop()

	s.log.Info("media stream started",
		"session_id", s.sessionID,
		"stream_sid", s.streamSid,
	)
}

func (s *stream) onMedia(p *mediaPayload) {
	if p == nil || s.buffer == nil {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(p.Payload)
	if err != nil {
		s.log.Warn("media payload decode failed", "session_id", s.sessionID, "err", err)
		return
	}
	if len(raw) == 0 {
		return
	}
	s.buffer.Push(raw)
	s.buffer.Flush()
}

// onChunk receives drained μ-law sub-chunks in arrival order.
func (s *stream) onChunk(chunk []byte) error {
	pcm, err := audio.Transcode(chunk)
	if err != nil {
		return err
	}
	s.utterance = append(s.utterance, pcm...)
	if len(s.utterance) >= s.handler.Config.WindowBytes {
		s.dispatchWindow(false)
	}
	return nil
}

// dispatchWindow queues the accumulated PCM for transcription. The window is
// final when the stream is ending and no more audio will follow.
func (s *stream) dispatchWindow(final bool) {
	if len(s.utterance) == 0 || s.windows == nil {
		return
	}
	window := s.utterance
	s.utterance = nil
	s.windows <- transcriptionWindow{pcm: window, final: final}
}

// transcribeLoop drains queued windows one at a time. Serializing here means
// a slow transcription for one window cannot let a later window's fragment
// overtake it into the session transcript.
func (s *stream) transcribeLoop() {
	defer s.wg.Done()
	for w := range s.windows {
		s.transcribeWindow(w.pcm, w.final)
	}
}

func (s *stream) transcribeWindow(pcm []byte, final bool) {
	if s.handler.Metrics != nil {
		s.handler.Metrics.TranscriptionRequests.Inc()
	}
	res, err := s.handler.Transcriber.Transcribe(s.ctx, pcm)
	if err != nil {
		if errors.Is(err, speech.ErrNoSpeech) {
			return
		}
		if s.handler.Metrics != nil {
			s.handler.Metrics.TranscriptionFailures.Inc()
		}
		s.log.Warn("transcription failed", "session_id", s.sessionID, "err", err)
		return
	}
	if final {
		res.IsFinal = true
	}

	result, err := s.handler.Orchestrator.OnSpeechFragment(s.ctx, s.sessionID, res)
	if err != nil {
		if !errors.Is(err, orchestrator.ErrSessionEnded) {
			s.log.Warn("turn failed", "session_id", s.sessionID, "err", err)
		}
		return
	}
	if result == nil {
		return
	}
	s.sendReply(result)
}

// sendReply streams reply audio back over the socket as media frames.
// Fallback clips have no audio of their own and are skipped here; the
// webhook path covers spoken fallbacks.
func (s *stream) sendReply(result *orchestrator.TurnResult) {
	for _, clip := range result.Clips {
		if clip.Fallback || len(clip.Audio) == 0 {
			continue
		}
		frame := streamEvent{
			Event:     "media",
			StreamSid: s.streamSid,
			Media:     &mediaPayload{Payload: base64.StdEncoding.EncodeToString(clip.Audio)},
		}
		s.writeMu.Lock()
		err := s.conn.WriteJSON(frame)
		s.writeMu.Unlock()
		if err != nil {
			s.log.Warn("media write failed", "session_id", s.sessionID, "err", err)
			return
		}
	}

	if result.EndCall {
		if err := s.handler.Orchestrator.EndSession(s.ctx, s.sessionID, result.EndReason); err != nil {
			s.log.Warn("session teardown failed", "session_id", s.sessionID, "err", err)
		}
	}
}

// onStop flushes the tail of the utterance as a final window.
func (s *stream) onStop() {
	if s.buffer != nil {
		s.buffer.Flush()
		s.dispatchWindow(true)
		s.buffer.Clear()
	}
	if s.windows != nil {
		close(s.windows)
	}
	s.wg.Wait()
	s.log.Info("media stream stopped", "session_id", s.sessionID)
}

// teardown covers abrupt disconnects without a stop event.
func (s *stream) teardown() {
	if s.buffer != nil {
		s.buffer.Clear()
	}
	if s.windows != nil {
		close(s.windows)
	}
}
