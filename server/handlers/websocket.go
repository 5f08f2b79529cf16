package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/san-kum/squat-coach-cv/server/models"
	"github.com/san-kum/squat-coach-cv/server/processor"
	"go.uber.org/zap"
)

const (
	wsReadLimit    = 10 * 1024 * 1024
	wsPongWait     = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteWait    = 10 * time.Second
)

// WebSocketHandler is an alternative to POST /upload_frame for clients that
// keep a connection open. Frames are processed in order, one at a time per
// connection.
type WebSocketHandler struct {
	processor *processor.FrameProcessor
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func NewWebSocketHandler(processor *processor.FrameProcessor, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		processor: processor,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowedOrigins) == 0 ||
					contains(allowedOrigins, "*") || contains(allowedOrigins, origin)
			},
		},
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection", zap.Error(err))
		return
	}
	conn := &wsConn{Conn: raw}
	defer conn.Close()

	clientIP := c.ClientIP()
	h.logger.Info("WebSocket client connected", zap.String("client_ip", clientIP))

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go h.pingRoutine(ctx, conn)

	for {
		var message models.ClientMessage
		if err := conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error", zap.Error(err), zap.String("client_ip", clientIP))
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		h.handleMessage(ctx, conn, clientIP, &message)
	}

	h.logger.Info("WebSocket client disconnected", zap.String("client_ip", clientIP))
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *wsConn, clientIP string, message *models.ClientMessage) {
	switch message.Type {
	case "frame":
		h.processVideoFrame(ctx, conn, clientIP, message)
	case "ping":
		h.sendMessage(conn, "pong", map[string]any{"timestamp": time.Now().Unix()})
	default:
		h.logger.Warn("Unknown message type received", zap.String("type", message.Type))
		h.sendError(conn, "Unknown message type: "+message.Type)
	}
}

func (h *WebSocketHandler) processVideoFrame(ctx context.Context, conn *wsConn, clientIP string, message *models.ClientMessage) {
	result, err := h.processor.ProcessDataURL(ctx, message.Data, clientIP)
	if err != nil {
		_, text := statusForError(err)
		h.logger.Debug("WebSocket frame failed", zap.Error(err))
		h.sendError(conn, text)
		return
	}

	h.sendMessage(conn, "result", result)
}

func (h *WebSocketHandler) sendMessage(conn *wsConn, messageType string, data any) {
	message := models.ServerMessage{
		Type: messageType,
		Data: data,
	}

	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(message); err != nil {
		h.logger.Error("Failed to send WebSocket message", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(conn *wsConn, errorMsg string) {
	h.sendMessage(conn, "error", map[string]any{
		"message":   errorMsg,
		"timestamp": time.Now().Unix(),
	})
}

func (h *WebSocketHandler) pingRoutine(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			conn.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			conn.writeMu.Unlock()
			if err != nil {
				h.logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
