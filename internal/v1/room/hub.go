package room

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/auth"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/metrics"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/participant"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/google/uuid"
	"log/slog"
)

// TokenValidator is the pluggable JWT auth capability (spec.md §6: auth is
// optional, SkipAuth bypasses it in development), mirroring the teacher's
// session.TokenValidator seam so either *auth.Validator or *auth.MockValidator
// satisfies it unchanged.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}

// Hub upgrades incoming connections to websockets and wires each one to a
// Participant and the Dispatcher, grounded on the teacher's session.Hub
// (same auth-then-upgrade shape), generalized so room membership is decided
// by the first join-room signaling message rather than at upgrade time —
// a bare socket belongs to no room until it asks to join one.
type Hub struct {
	orchestrator   *Orchestrator
	dispatcher     *Dispatcher
	validator      TokenValidator
	skipAuth       bool
	allowedOrigins []string
}

// NewHub wires a Hub. If skipAuth is true (development mode, spec.md §6),
// ValidateToken is never called and a synthetic subject is used.
func NewHub(orchestrator *Orchestrator, dispatcher *Dispatcher, validator TokenValidator, skipAuth bool, allowedOrigins []string) *Hub {
	return &Hub{
		orchestrator:   orchestrator,
		dispatcher:     dispatcher,
		validator:      validator,
		skipAuth:       skipAuth,
		allowedOrigins: allowedOrigins,
	}
}

var wsUpgrader = websocket.Upgrader{
	WriteBufferPool: &sync.Pool{
		New: func() any { return make([]byte, 4096) },
	},
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}
	return false
}

// ServeWs authenticates the connection, upgrades it, and starts the
// participant's read/write pumps. Room admission itself happens later, when
// the client sends its first join-room message (spec.md §4.7/§6).
func (h *Hub) ServeWs(c *gin.Context) {
	subject := "anon-" + uuid.NewString()
	if !h.skipAuth {
		tokenString := c.Query("token")
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token not provided"})
			return
		}
		claims, err := h.validator.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		subject = claims.Subject
	}

	upgrader := wsUpgrader
	upgrader.CheckOrigin = h.checkOrigin

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("hub: failed to upgrade connection", "error", err)
		return
	}

	displayName := c.Query("username")
	if displayName == "" {
		displayName = subject
	}

	p := participant.New(subject, subject, "", displayName, participant.RoleViewer, conn, h.dispatcher)
	metrics.IncConnection()

	go p.WritePump()
	go p.ReadPump(c.Request.Context())
}
