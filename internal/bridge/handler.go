package bridge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lexiqai/realtime-bridge/internal/config"
	"github.com/lexiqai/realtime-bridge/internal/observability"
	"github.com/lexiqai/realtime-bridge/internal/realtime"
	"github.com/lexiqai/realtime-bridge/internal/resilience"
	"github.com/lexiqai/realtime-bridge/internal/transport"
)

// EngineDialer opens engine sessions
type EngineDialer interface {
	Connect(ctx context.Context) (*transport.Conn, error)
}

// Handler accepts Twilio media stream connections and bridges each one to a
// new engine session
type Handler struct {
	ctx      context.Context
	dialer   EngineDialer
	session  realtime.SessionConfig
	upgrader websocket.Upgrader

	logEventTypes   []string
	showTimingMath  bool
	maxPendingMarks int
}

// NewHandler creates the media stream handler. Calls in progress end when ctx
// is cancelled.
func NewHandler(ctx context.Context, cfg *config.Config, dialer EngineDialer, session realtime.SessionConfig) *Handler {
	return &Handler{
		ctx:     ctx,
		dialer:  dialer,
		session: session,
		upgrader: websocket.Upgrader{
			// Twilio does not send a browser Origin
			CheckOrigin:      func(r *http.Request) bool { return true },
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
		},
		logEventTypes:   cfg.LogEventTypes,
		showTimingMath:  cfg.ShowTimingMath,
		maxPendingMarks: cfg.MaxPendingMarks,
	}
}

// ServeHTTP dials and configures the engine before accepting the stream, so a
// rejected engine session is reported to Twilio as a failed upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	callID := observability.NewCallID()
	logger := observability.CallLogger(r.Header.Get("X-Request-Id"), callID)
	metrics := observability.NewCallMetrics(callID)

	logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Client connected")

	engine, err := h.dialer.Connect(r.Context())
	if err != nil {
		metrics.RecordError(dialErrorType(err), "realtime")
		logger.Error().Err(err).Msg("Failed to connect to the Realtime API")
		http.Error(w, "conversation engine unavailable", http.StatusBadGateway)
		return
	}

	if err := realtime.Initialize(engine, h.session); err != nil {
		engine.Close()
		metrics.RecordError("initialize", "realtime")
		logger.Error().Err(err).Msg("Failed to initialize Realtime session")
		http.Error(w, "conversation engine unavailable", http.StatusBadGateway)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		engine.Close()
		metrics.RecordError("upgrade", "telephony")
		logger.Error().Err(err).Msg("Failed to upgrade media stream")
		return
	}
	tel := transport.New(ws, transport.DefaultWriteTimeout)

	metrics.RecordCallStart()
	defer metrics.RecordCallEnd()

	b := New(tel, engine, Options{
		LogEventTypes:   h.logEventTypes,
		ShowTimingMath:  h.showTimingMath,
		MaxPendingMarks: h.maxPendingMarks,
		Logger:          logger,
		Metrics:         metrics,
	})
	if err := b.Run(h.ctx); err != nil {
		return
	}
	logger.Info().Msg("Call ended")
}

func dialErrorType(err error) string {
	switch {
	case errors.Is(err, realtime.ErrHandshakeRejected):
		return "handshake_rejected"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	default:
		return "dial"
	}
}
