// Monitoring HTTP handlers.
//
// This file exposes REST endpoints for the monitoring API:
//   - GET  /status           (connection + counters)
//   - GET  /servers          (known servers)
//   - GET  /channels         (channels, optionally by server)
//   - GET  /messages         (filtered, paginated search)
//   - GET  /stats            (dashboard aggregate)
//   - GET  /logs             (command execution history)
//   - POST /execute-command  (run a chat command over HTTP)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mpapad/go-discord-monitor/internal/domain"
	"github.com/mpapad/go-discord-monitor/internal/http/middleware"
	"github.com/mpapad/go-discord-monitor/internal/repo"
	"github.com/mpapad/go-discord-monitor/internal/services"
	"github.com/mpapad/go-discord-monitor/internal/utils"
)

//
// Service contracts (context-aware)
//

// QueryService defines the read-side operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type QueryService interface {
	// Status returns the persisted singleton merged with the live
	// connection state.
	Status(ctx context.Context) (*services.StatusReport, error)
	// Servers lists all known servers.
	Servers(ctx context.Context) ([]domain.Server, error)
	// Channels lists channels, optionally restricted to one server.
	Channels(ctx context.Context, serverID string) ([]domain.Channel, error)
	// Messages runs a filtered, paginated search.
	Messages(ctx context.Context, f repo.MessageFilter) (*services.MessagesPage, error)
	// Stats assembles the dashboard aggregate.
	Stats(ctx context.Context) (*services.StatsReport, error)
	// Logs returns command execution records, newest first.
	Logs(ctx context.Context, limit int) ([]domain.CommandLog, error)
}

// CommandService runs one chat command line and returns the display string.
type CommandService interface {
	Execute(ctx context.Context, raw string) (string, error)
}

// CommandRecorder appends one command execution record. Every call to
// POST /execute-command produces a record, including rejected ones.
type CommandRecorder interface {
	CreateCommandLog(ctx context.Context, command, response string) (*domain.CommandLog, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for the monitoring API. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic. Gateway may be nil when the process runs without an
// ingestion connection.
type Handlers struct {
	querySvc QueryService
	cmdSvc   CommandService
	recorder CommandRecorder
	gateway  services.Gateway
}

// New constructs and returns a Handlers instance bound to the given services.
func New(querySvc QueryService, cmdSvc CommandService, recorder CommandRecorder, gateway services.Gateway) *Handlers {
	return &Handlers{querySvc: querySvc, cmdSvc: cmdSvc, recorder: recorder, gateway: gateway}
}

//
// DTOs
//

// ExecuteCommandRequest is the JSON payload for running a chat command.
type ExecuteCommandRequest struct {
	// Command is the full command line including the "!" prefix.
	Command string `json:"command" binding:"required"`
}

// ExecuteCommandResponse wraps the command's display output.
type ExecuteCommandResponse struct {
	Response string `json:"response"`
}

//
// Helpers
//

// messageFilter parses and bounds the message search query params.
func messageFilter(c *gin.Context) repo.MessageFilter {
	const maxLimit = 100

	limit := utils.AtoiDefault(c.Query("limit"), 10)
	if limit < 1 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := utils.AtoiDefault(c.Query("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	return repo.MessageFilter{
		ServerID:  strings.TrimSpace(c.Query("serverId")),
		ChannelID: strings.TrimSpace(c.Query("channelId")),
		Search:    strings.TrimSpace(c.Query("search")),
		Limit:     limit,
		Offset:    offset,
	}
}

// recordCommand appends a CommandLog entry; failures are logged, never
// surfaced, so recording can never mask the real command outcome.
func (h *Handlers) recordCommand(c *gin.Context, command, response string) {
	if _, err := h.recorder.CreateCommandLog(c.Request.Context(), command, response); err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("recording command log failed")
	}
}

//
// Handlers
//

// GetStatus returns the bot's connection state and stored counters.
func (h *Handlers) GetStatus(c *gin.Context) {
	rep, err := h.querySvc.Status(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "loading status failed")
		return
	}
	ok(c, http.StatusOK, rep)
}

// ListServers returns every server the monitor has seen.
func (h *Handlers) ListServers(c *gin.Context) {
	servers, err := h.querySvc.Servers(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "listing servers failed")
		return
	}
	ok(c, http.StatusOK, servers)
}

// ListChannels returns channels, optionally restricted to ?serverId=.
func (h *Handlers) ListChannels(c *gin.Context) {
	serverID := strings.TrimSpace(c.Query("serverId"))
	channels, err := h.querySvc.Channels(c.Request.Context(), serverID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "listing channels failed")
		return
	}
	ok(c, http.StatusOK, channels)
}

// ListMessages runs a filtered, paginated message search. Filters combine
// conjunctively; search matches content or author username.
func (h *Handlers) ListMessages(c *gin.Context) {
	page, err := h.querySvc.Messages(c.Request.Context(), messageFilter(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "searching messages failed")
		return
	}
	ok(c, http.StatusOK, page)
}

// GetStats returns the dashboard aggregate.
func (h *Handlers) GetStats(c *gin.Context) {
	rep, err := h.querySvc.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "loading stats failed")
		return
	}
	ok(c, http.StatusOK, rep)
}

// ListLogs returns command execution records, newest first. ?limit= caps
// the page (default 50, max 1000).
func (h *Handlers) ListLogs(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 50)
	if limit < 1 {
		limit = 1
	}
	if limit > repo.CommandLogCap {
		limit = repo.CommandLogCap
	}

	logs, err := h.querySvc.Logs(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "listing command logs failed")
		return
	}
	ok(c, http.StatusOK, logs)
}

// ExecuteCommand runs one chat command over HTTP. Rejections (missing
// prefix, offline bot) and successes alike are appended to the command
// log, with the error text as the recorded response.
func (h *Handlers) ExecuteCommand(c *gin.Context) {
	var req ExecuteCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	command := strings.TrimSpace(req.Command)

	if !strings.HasPrefix(command, services.CommandPrefix) {
		msg := "command must start with " + services.CommandPrefix
		h.recordCommand(c, command, msg)
		fail(c, http.StatusBadRequest, ErrCodeValidation, msg)
		return
	}

	if h.gateway == nil || !h.gateway.IsConnected() {
		msg := "bot is not connected"
		h.recordCommand(c, command, msg)
		fail(c, http.StatusServiceUnavailable, ErrCodeGatewayOffline, msg)
		return
	}

	resp, err := h.cmdSvc.Execute(c.Request.Context(), command)
	switch {
	case err == nil, errors.Is(err, services.ErrUnknownCommand):
		// An unknown verb is a normal command outcome; the guidance text
		// is the response.
		h.recordCommand(c, command, resp)
		ok(c, http.StatusOK, ExecuteCommandResponse{Response: resp})
	default:
		h.recordCommand(c, command, err.Error())
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "command execution failed")
	}
}
