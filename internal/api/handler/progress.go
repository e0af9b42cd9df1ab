package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/maraichr/pictor/internal/progress"
	"github.com/maraichr/pictor/pkg/apierr"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Cross-origin policy is enforced by the CORS middleware; the upgrade
	// itself accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ProgressHandler streams a session's connected/progress/complete events over
// a websocket. The credential arrives as a query parameter because the
// browser websocket API cannot set headers; the auth middleware handles it
// before this handler runs.
type ProgressHandler struct {
	logger   *slog.Logger
	registry *progress.Registry
}

func NewProgressHandler(logger *slog.Logger, registry *progress.Registry) *ProgressHandler {
	return &ProgressHandler{logger: logger, registry: registry}
}

func (h *ProgressHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	// Resolve before upgrading so unknown and evicted sessions get a plain
	// 404 instead of a dead socket.
	sub, ok := h.registry.Subscribe(sessionID)
	if !ok {
		writeAPIError(w, h.logger, apierr.SessionNotFound())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	// Reader loop: we never expect client messages, but reading is how the
	// peer's close frame is noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		sub.Close()
		conn.Close()
	}()

	for {
		select {
		case ev, open := <-sub.Events():
			if !open {
				// Session evicted while we were attached.
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.Type == "complete" {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
		case <-closed:
			// Client went away mid-batch; drop this subscriber only.
			return
		}
	}
}
