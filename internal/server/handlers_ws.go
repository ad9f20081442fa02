package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/mytechsonamy/mytrader-sub018/internal/broadcast"
	"github.com/mytechsonamy/mytrader-sub018/internal/domain"
	apperrors "github.com/mytechsonamy/mytrader-sub018/internal/errors"
	"github.com/mytechsonamy/mytrader-sub018/internal/logging"
	"github.com/mytechsonamy/mytrader-sub018/internal/metrics"
)

const maxMessageSize = 64 * 1024

// Origin enforcement happens at the fronting proxy; the upgrader accepts all.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientCommand is one inbound frame. The transport layer has already
// authenticated the caller; this is pure command routing.
type clientCommand struct {
	Action        string            `json:"action"`
	Category      domain.Category   `json:"category"`
	Targets       []string          `json:"targets"`
	MinConfidence float64           `json:"minConfidence"`
	DataType      string            `json:"dataType"`
	Params        map[string]string `json:"params"`
}

type errorFrame struct {
	Type    string              `json:"type"`
	Code    apperrors.ErrorType `json:"code"`
	Message string              `json:"message"`
}

func (s *Server) handleWebSocket(session *broadcast.ChannelSession) echo.HandlerFunc {
	return func(c echo.Context) error {
		ip := c.RealIP()

		ok, reason := s.limits.Acquire(ip)
		if !ok {
			metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
			metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
			rejection := apperrors.RateLimitedError("connection limit reached: " + string(reason))
			return c.JSON(rejection.HTTPStatus(), rejection.ToResponse())
		}

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			s.limits.Release(ip)
			metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
			slog.Warn("WebSocket upgrade failed", "channel", session.Channel(), "error", err)
			return nil
		}
		metrics.WebSocketConnectionsTotal.WithLabelValues("success").Inc()

		// A fresh id per session; Gone ids are never reused.
		id := domain.ConnectionID(uuid.NewString())
		identity := identityFromRequest(c)
		writer := broadcast.NewClientWriter(conn, s.clock)

		session.OnConnect(c.Request().Context(), id, identity, writer)

		s.readLoop(conn, session, id, writer)

		// Cleanup is not skippable: it runs whether the read loop ended
		// cleanly or the transport failed underneath it.
		session.OnDisconnect(id)
		writer.Stop()
		s.limits.Release(ip)
		return nil
	}
}

func (s *Server) readLoop(conn *websocket.Conn, session *broadcast.ChannelSession, id domain.ConnectionID, writer *broadcast.ClientWriter) {
	conn.SetReadLimit(maxMessageSize)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.WithConnection(string(id)).Warn("WebSocket read error", "channel", session.Channel(), "error", err)
			}
			return
		}
		s.dispatchCommand(session, id, writer, raw)
	}
}

// dispatchCommand is the command boundary: every failure is caught here,
// logged with operation name and connection id, and reported to the caller
// alone as a typed error frame.
func (s *Server) dispatchCommand(session *broadcast.ChannelSession, id domain.ConnectionID, writer *broadcast.ClientWriter, raw []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		s.writeError(writer, apperrors.ValidationError("malformed command"))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Command handler panic", "action", cmd.Action, "connection_id", string(id), "panic", r)
			s.writeError(writer, apperrors.InternalError("operation failed", nil))
		}
	}()

	switch cmd.Action {
	case "subscribe":
		filter := domain.FilterParams{MinConfidence: cmd.MinConfidence}
		ack, err := session.HandleSubscribe(id, cmd.Category, cmd.Targets, filter)
		s.reply(session, id, writer, cmd.Action, ack, err)
	case "unsubscribe":
		ack, err := session.HandleUnsubscribe(id, cmd.Category, cmd.Targets)
		s.reply(session, id, writer, cmd.Action, ack, err)
	case "ping":
		pong, err := session.Ping(id)
		s.reply(session, id, writer, cmd.Action, pong, err)
	case "snapshot":
		err := session.RequestSnapshot(context.Background(), id, cmd.DataType, cmd.Params)
		if err != nil {
			s.reply(session, id, writer, cmd.Action, nil, err)
		}
	default:
		s.writeError(writer, apperrors.ValidationError("unknown action").WithContext("action", cmd.Action))
	}
}

func (s *Server) reply(session *broadcast.ChannelSession, id domain.ConnectionID, writer *broadcast.ClientWriter, action string, payload any, err error) {
	if err != nil {
		structured := apperrors.AsStructuredError(err)
		slog.Warn("Command failed",
			"channel", session.Channel(),
			"action", action,
			"connection_id", string(id),
			"error_type", string(structured.Type),
			"error", err,
		)
		s.writeError(writer, structured)
		return
	}
	s.writeFrame(writer, payload)
}

func (s *Server) writeError(writer *broadcast.ClientWriter, err *apperrors.Error) {
	s.writeFrame(writer, errorFrame{
		Type:    "error",
		Code:    err.Type,
		Message: err.Message,
	})
}

// writeFrame delivers a reply to the originating connection only. Reply
// delivery failures are logged, never escalated: the read loop notices a
// dead transport on its own.
func (s *Server) writeFrame(writer *broadcast.ClientWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal reply", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.config.SendTimeout)
	defer cancel()
	if err := writer.Send(ctx, data); err != nil {
		slog.Debug("Failed to deliver reply", "error", err)
	}
}

// identityFromRequest extracts the identity the auth collaborator attached
// upstream (header from the proxy, query param for dev tooling).
func identityFromRequest(c echo.Context) domain.Identity {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		userID = c.QueryParam("user")
	}
	return domain.Identity{UserID: userID}
}
