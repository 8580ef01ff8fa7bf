package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/mmuslimabdulj/goat-whisper/internal/auth"
	"github.com/mmuslimabdulj/goat-whisper/internal/delivery/ws"
	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
	"github.com/mmuslimabdulj/goat-whisper/internal/metrics"
	"go.uber.org/zap"
)

// isOriginAllowed checks if the origin is in the allowed list
func isOriginAllowed(origin string, allowed []string) bool {
	// Empty origin is allowed (non-browser clients)
	if origin == "" {
		return true
	}

	for _, a := range allowed {
		if a == "*" || origin == a {
			return true
		}
	}
	return false
}

type Handler struct {
	manager  *ws.Manager
	authn    ws.Authenticator
	metrics  *metrics.Metrics
	log      *zap.Logger
	upgrader websocket.Upgrader
	started  time.Time
}

func NewHandler(manager *ws.Manager, authn ws.Authenticator, m *metrics.Metrics, allowedOrigins []string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		manager: manager,
		authn:   authn,
		metrics: m,
		log:     log.Named("http"),
		started: time.Now(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r.Header.Get("Origin"), allowedOrigins)
		},
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			h.log.Debug("websocket upgrade rejected", zap.Int("status", status), zap.Error(reason))
			http.Error(w, http.StatusText(status), status)
		},
	}
	return h
}

// HandleWebSocket upgrades HTTP to WebSocket. A token on the upgrade
// request is verified before the upgrade; without one the client must
// send an authenticate event as its first frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var identity *domain.Identity
	if token := auth.TokenFromRequest(r); token != "" {
		id, err := h.authn.Authenticate(token)
		if err != nil {
			h.metrics.AuthFailed("upgrade")
			h.log.Debug("upgrade authentication failed", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": domain.PublicMessage(err, "authentication failed"),
			})
			return
		}
		identity = &id
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.manager.Serve(conn, identity)
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Uptime      string `json:"uptime"`
}

// HandleHealth reports liveness and the number of open connections
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Connections: h.manager.ConnectionCount(),
		Uptime:      time.Since(h.started).Truncate(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(v)
}
