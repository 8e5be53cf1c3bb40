package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/doctools/backend/internal/logging"
	"github.com/doctools/backend/internal/models"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebSocket message types for the notification channel
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected    = "connected"
	MsgTypeClosed       = "closed"
	MsgTypeNotification = "notification"
	MsgTypePong         = "pong"
	MsgTypeError        = "error"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 2 * wsPingPeriod
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NotificationHandlerImpl implements the NotificationHandler interface
type NotificationHandlerImpl struct {
	sessions SessionManager
	feed     NotificationFeed
	history  NotificationHistory
	upgrader websocket.Upgrader
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(sessions SessionManager, feed NotificationFeed, history NotificationHistory) NotificationHandler {
	return &NotificationHandlerImpl{
		sessions: sessions,
		feed:     feed,
		history:  history,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
		},
	}
}

// HandleListNotifications returns recent notifications for a session, oldest first
func (h *NotificationHandlerImpl) HandleListNotifications(c echo.Context) error {
	id := c.Param("id")
	if _, ok := h.sessions.GetSession(id); !ok {
		return NewNotFoundError("session", id)
	}
	if h.history == nil {
		return c.JSON(http.StatusOK, []models.Notification{})
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return NewValidationError("limit")
		}
		limit = n
	}

	list, err := h.history.Recent(c.Request().Context(), id, limit)
	if err != nil {
		return NewInternalError("failed to read notifications", err)
	}
	if list == nil {
		list = []models.Notification{}
	}
	return c.JSON(http.StatusOK, list)
}

// HandleWebSocket upgrades the connection and pushes the session's
// notifications as they are emitted
func (h *NotificationHandlerImpl) HandleWebSocket(c echo.Context) error {
	id := c.Param("id")
	if _, ok := h.sessions.GetSession(id); !ok {
		return NewNotFoundError("session", id)
	}
	if h.feed == nil {
		return NewServiceUnavailableError("live notifications are disabled")
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	short := logging.ShortID(id)
	logger.Debugf("[WebSocket %s] Client connected", short)

	notifications, unsubscribe := h.feed.Subscribe(id)
	defer unsubscribe()

	// Only this goroutine writes data frames; the reader forwards pings.
	pings := make(chan WSMessage, 4)
	closed := make(chan struct{})
	go h.readLoop(ws, pings, closed)

	if err := h.write(ws, WSMessage{Type: MsgTypeConnected, ID: id}); err != nil {
		return nil
	}

	keepAlive := time.NewTicker(wsPingPeriod)
	defer keepAlive.Stop()

	for {
		select {
		case <-closed:
			logger.Debugf("[WebSocket %s] Client disconnected", short)
			return nil

		case msg := <-pings:
			if err := h.write(ws, msg); err != nil {
				return nil
			}

		case n, ok := <-notifications:
			if !ok {
				// The session was closed or evicted.
				logger.Debugf("[WebSocket %s] Session ended, closing connection", short)
				h.write(ws, WSMessage{Type: MsgTypeClosed, ID: id})
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(wsWriteWait))
				return nil
			}
			payload, _ := json.Marshal(n)
			if err := h.write(ws, WSMessage{Type: MsgTypeNotification, ID: id, Payload: payload}); err != nil {
				return nil
			}

		case <-keepAlive.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return nil
			}
		}
	}
}

func (h *NotificationHandlerImpl) readLoop(ws *websocket.Conn, pings chan<- WSMessage, closed chan<- struct{}) {
	defer close(closed)

	ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugf("[WebSocket] Connection error: %v", err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(wsPongWait))

		var reply WSMessage
		switch msg.Type {
		case MsgTypePing:
			reply = WSMessage{Type: MsgTypePong, ID: msg.ID}
		default:
			payload, _ := json.Marshal(WSErrorResponse{Message: "Unknown message type: " + msg.Type, Code: "INVALID_TYPE"})
			reply = WSMessage{Type: MsgTypeError, ID: msg.ID, Payload: payload}
		}
		select {
		case pings <- reply:
		default:
		}
	}
}

func (h *NotificationHandlerImpl) write(ws *websocket.Conn, msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return ws.WriteJSON(msg)
}
