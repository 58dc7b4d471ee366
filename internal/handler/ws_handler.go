package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/nexus-backend/internal/middleware"
	"github.com/stemsi/nexus-backend/internal/response"
	"github.com/stemsi/nexus-backend/internal/service"
	"github.com/stemsi/nexus-backend/internal/session"
	ws "github.com/stemsi/nexus-backend/internal/websocket"
)

const dailyWatchInterval = time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the active exam session and the daily status.
type WSHandler struct {
	sessionService *service.ExamSessionService
	dailyService   *service.DailyService
	tick           time.Duration
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.ExamSessionService, dailyService *service.DailyService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		dailyService:   dailyService,
		tick:           time.Second,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/exams/active/stream?token=
// Pushes the session state on connect, the countdown every second and the
// result once the session is finalized by either side.
func (h *WSHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	wsLog := h.log.With().Str("user_id", claims.UserID).Logger()

	m, err := h.sessionService.Active(ctx, claims.UserID)
	if err != nil {
		_, code := classify(err)
		ws.WriteError(conn, string(code))
		return
	}

	wsLog.Info().Msg("Client connected")
	ws.WriteTyped(conn, ws.StateResponse{Event: ws.EventState, Snapshot: m.Snapshot()})

	go h.pushTicks(ctx, conn, m, wsLog)

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		h.dispatch(ctx, conn, m, &msg, wsLog)
	}
}

// pushTicks sends the countdown until the machine is terminal, then the
// result.
func (h *WSHandler) pushTicks(ctx context.Context, conn *ws.Conn, m *session.Machine, wsLog zerolog.Logger) {
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.Done():
			snap := m.Snapshot()
			if snap.Result == nil {
				ws.WriteError(conn, string(response.ErrSessionNotActive))
			} else {
				ws.WriteTyped(conn, ws.GradedResponse{Event: ws.EventGraded, Result: snap.Result})
			}
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
			snap := m.Snapshot()
			if snap.State != session.StateActive {
				continue
			}
			if err := ws.WriteTyped(conn, ws.TickResponse{Event: ws.EventTick, Remaining: snap.Remaining}); err != nil {
				wsLog.Debug().Err(err).Msg("Tick write failed")
				return
			}
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, conn *ws.Conn, m *session.Machine, msg *ws.Request, wsLog zerolog.Logger) {
	var err error
	switch msg.Action {
	case ws.ActionPing:
		ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		return
	case ws.ActionAnswer:
		err = m.Answer(ctx, msg.Answer)
	case ws.ActionToggleOption:
		err = m.ToggleOption(ctx, msg.Option)
	case ws.ActionClear:
		err = m.Clear(ctx)
	case ws.ActionMark:
		err = m.ToggleMark(ctx)
	case ws.ActionJump:
		err = m.Jump(ctx, msg.Index)
	case ws.ActionNavigate:
		var nav session.Nav
		nav, err = navigate(ctx, m, msg.Direction, msg.Index)
		if err == nil && nav == session.NavConfirmSubmit {
			ws.WriteTyped(conn, ws.ConfirmResponse{Event: ws.EventConfirm})
			return
		}
	case ws.ActionSubmit:
		// The tick goroutine reports the result once the machine is terminal.
		if _, err = m.Finalize(ctx); err == nil {
			return
		}
	default:
		wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		ws.WriteError(conn, "unknown action: "+string(msg.Action))
		return
	}

	if err != nil {
		_, code := classify(err)
		ws.WriteError(conn, string(code))
		return
	}
	ws.WriteTyped(conn, ws.StateResponse{Event: ws.EventState, Snapshot: m.Snapshot()})
}

// DailyStream godoc
// WS /ws/v1/daily/stream?token=
// Pushes the daily status whenever it changes, including the moment the
// challenge unlocks.
func (h *WSHandler) DailyStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			var msg ws.Request
			if err := ws.ReadJSON(conn, &msg); err != nil {
				return
			}
			if msg.Action == ws.ActionPing {
				ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
			}
		}
	}()

	for st := range h.dailyService.Watch(ctx, claims.UserID, claims.IsAdmin(), dailyWatchInterval) {
		if err := ws.WriteTyped(conn, ws.DailyResponse{Event: ws.EventDaily, Status: st}); err != nil {
			return
		}
	}
}
