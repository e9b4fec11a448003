package handler

import (
	"net/http"

	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/meridianledger/core/internal/websocket"
)

// JWTValidator validates JWT tokens and returns the caller's PersonID.
type JWTValidator interface {
	ValidateToken(token string) (personID string, err error)
}

// WebSocketHandler upgrades a request into a subscription to one
// topic's domain-event stream — either a single account's or a single
// workflow's.
type WebSocketHandler struct {
	hub            *websocket.Hub
	validator      JWTValidator
	allowedOrigins map[string]bool
	upgrader       ws.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *websocket.Hub, validator JWTValidator, allowedOrigins []string) *WebSocketHandler {
	// Build origin lookup map
	originMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		originMap[origin] = true
	}

	h := &WebSocketHandler{
		hub:            hub,
		validator:      validator,
		allowedOrigins: originMap,
	}

	h.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// checkOrigin validates the request origin against allowed origins
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Allow requests with no Origin header (e.g., same-origin or non-browser clients)
		return true
	}

	if h.allowedOrigins[origin] {
		return true
	}

	log.Warn().
		Str("origin", origin).
		Msg("WebSocket connection rejected: origin not allowed")
	return false
}

// HandleWS handles a WebSocket upgrade at
// GET /ws?token=...&account_id=... or GET /ws?token=...&workflow_id=...
// token identifies the caller; exactly one of account_id or workflow_id
// selects the event stream to subscribe to — workflow_id is the only
// way to watch a workflow that isn't tied to any single account (e.g. a
// KycUpdate run against a customer). Authorizing that the caller may
// watch that particular account or workflow is the same ownership check
// the REST handlers perform against the identity registry and is out of
// this core's scope; this handler only validates that the token is
// well-formed and resolves to a known person.
func (h *WebSocketHandler) HandleWS(c echo.Context) error {
	// Get token from query parameter
	token := c.QueryParam("token")
	if token == "" {
		log.Debug().Msg("WebSocket connection rejected: missing token")
		return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}

	// Validate JWT and resolve the caller's person id
	personID, err := h.validator.ValidateToken(token)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket connection rejected: invalid token")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	accountID := c.QueryParam("account_id")
	workflowID := c.QueryParam("workflow_id")
	if (accountID == "") == (workflowID == "") {
		log.Debug().Msg("WebSocket connection rejected: exactly one of account_id or workflow_id is required")
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of account_id or workflow_id is required")
	}
	topic := websocket.AccountTopic(accountID)
	if workflowID != "" {
		topic = websocket.WorkflowTopic(workflowID)
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return err
	}

	// Create client and register with hub
	client := websocket.NewClient(conn, topic, h.hub)
	h.hub.Register(client)

	log.Info().
		Str("person_id", personID).
		Str("topic", topic).
		Str("client_id", client.ID()).
		Msg("WebSocket client connected")

	// Start read/write pumps in goroutines
	go client.WritePump()
	go client.ReadPump()

	return nil
}
