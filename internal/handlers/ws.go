package handlers

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"kcalify-backend/internal/logger"
	"kcalify-backend/internal/middleware"
	"kcalify-backend/internal/models"
	"kcalify-backend/internal/services"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// Websocket message types.
const (
	msgScan       = "scan"
	msgGetHistory = "get_history"
	msgScanResult = "scan_result"
	msgHistory    = "history"
	msgError      = "error"
)

type wsRequest struct {
	Type string `json:"type"`
	Data struct {
		UserID      string `json:"user_id"`
		Image       string `json:"image"`
		ContentType string `json:"content_type"`
		Limit       int    `json:"limit"`
	} `json:"data"`
}

// WebSocketHandler serves the scan channel. Messages on one connection are
// handled in order.
type WebSocketHandler struct {
	scanner        Scanner
	history        HistoryReader
	reporter       ErrorReporter
	defaultUserID  string
	maxUploadBytes int64
	upgrader       websocket.Upgrader
	log            *slog.Logger
}

func NewWebSocketHandler(scanner Scanner, history HistoryReader, reporter ErrorReporter, defaultUserID string, maxUploadBytes int64) *WebSocketHandler {
	return &WebSocketHandler{
		scanner:        scanner,
		history:        history,
		reporter:       reporter,
		defaultUserID:  defaultUserID,
		maxUploadBytes: maxUploadBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// any origin; access is controlled by the token
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger.Module("websocket"),
	}
}

// Serve godoc
// @Summary     Scan websocket
// @Description Accepts {"type":"scan"} and {"type":"get_history"} messages and answers with scan_result, history or error.
// @Tags        scan
// @Security    Bearer
// @Router      /ws [get]
func (h *WebSocketHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	subject, _ := middleware.AuthenticatedUserID(c)

	// base64 inflates by 4/3; leave room for the JSON envelope
	if h.maxUploadBytes > 0 {
		conn.SetReadLimit(h.maxUploadBytes*4/3 + 64*1024)
	}
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(conn, done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read failed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		reply := h.handleMessage(c, raw, subject)
		if err := h.write(conn, reply); err != nil {
			h.log.Warn("websocket write failed", "error", err)
			return
		}
	}
}

func (h *WebSocketHandler) handleMessage(c *gin.Context, raw []byte, subject string) models.WSMessage {
	var req wsRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorMessage("invalid message format")
	}

	userID, ok := h.userFor(req.Data.UserID, subject)
	if !ok {
		return errorMessage("user_id does not match the authenticated user")
	}

	switch req.Type {
	case msgScan:
		return h.handleScan(c, req, userID)
	case msgGetHistory:
		return h.handleHistory(c, req, userID)
	default:
		return errorMessage("unknown message type")
	}
}

func (h *WebSocketHandler) handleScan(c *gin.Context, req wsRequest, userID string) models.WSMessage {
	image, contentType, err := decodeImage(req.Data.Image)
	if err != nil {
		return errorMessage("invalid image data")
	}
	if req.Data.ContentType != "" {
		contentType = req.Data.ContentType
	}

	outcome, err := h.scanner.Process(c.Request.Context(), models.ScanRequest{
		UserID:      userID,
		Image:       image,
		ContentType: contentType,
	})
	if err != nil {
		if services.IsValidationError(err) {
			return errorMessage(err.Error())
		}
		h.log.Error("scan failed", "user_id", userID, "error", err)
		if h.reporter != nil {
			h.reporter.CaptureError(err, "websocket", "/ws")
		}
		return errorMessage("failed to process image")
	}

	return models.WSMessage{Type: msgScanResult, Data: outcome.Response()}
}

func (h *WebSocketHandler) handleHistory(c *gin.Context, req wsRequest, userID string) models.WSMessage {
	if h.history == nil {
		return errorMessage("meal history not available")
	}
	meals, err := h.history.List(c.Request.Context(), userID, req.Data.Limit)
	if err != nil {
		h.log.Warn("failed to load history", "user_id", userID, "error", err)
		return errorMessage("failed to load meal history")
	}
	return models.WSMessage{Type: msgHistory, Data: models.MealListResponse{Meals: meals, Count: len(meals)}}
}

// userFor applies the token subject when present. A different explicit
// user id is refused.
func (h *WebSocketHandler) userFor(requested, subject string) (string, bool) {
	switch {
	case subject == "":
		if requested == "" {
			return h.defaultUserID, true
		}
		return requested, true
	case requested == "" || requested == subject:
		return subject, true
	default:
		return "", false
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, msg models.WSMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func (h *WebSocketHandler) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func errorMessage(message string) models.WSMessage {
	return models.WSMessage{Type: msgError, Message: message}
}

// decodeImage accepts plain base64 or a data URL and returns the bytes and
// the declared type, if any.
func decodeImage(s string) ([]byte, string, error) {
	contentType := ""
	if strings.HasPrefix(s, "data:") {
		header, payload, found := strings.Cut(s, ",")
		if !found {
			return nil, "", base64.CorruptInputError(0)
		}
		contentType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}
