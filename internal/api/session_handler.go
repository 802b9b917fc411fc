package api

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/service"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SessionHandler serves the session records, the caller's current session and analytics.
type SessionHandler struct {
	sessionService service.SessionService
}

func NewSessionHandler(sessionService service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// CreateSession godoc
// @Summary Start a new session
// @Description Creates an active session owned by the caller. Fails if the caller already has an open session.
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param session body service.CreateSessionInput false "Optional title, difficulty, exercises"
// @Success 201 {object} domain.Session
// @Failure 409 {object} gin.H "An open session already exists"
// @Router /sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	var req service.CreateSessionInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}
	session, err := h.sessionService.Create(c.Request.Context(), actor, req)
	if err != nil {
		abortWithServiceError(c, err, "Failed to start session.")
		return
	}
	c.JSON(http.StatusCreated, session)
}

// ListSessions godoc
// @Summary List sessions visible to the caller
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param ownerId query string false "Owner filter"
// @Param status query string false "active|paused|completed|cancelled"
// @Param role query string false "client|trainer"
// @Param range query string false "all|today|week|month"
// @Param limit query int false "Maximum number of sessions"
// @Success 200 {array} domain.Session
// @Router /sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	q := service.ListQuery{
		OwnerID: c.Query("ownerId"),
		Status:  domain.SessionStatus(c.Query("status")),
		Role:    domain.Role(c.Query("role")),
		Range:   domain.DateRange(c.Query("range")),
	}
	if q.Status == "all" {
		q.Status = ""
	}
	if q.Role == "all" {
		q.Role = ""
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || limit < 0 {
			abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Invalid limit %q", raw))
			return
		}
		q.Limit = limit
	}

	sessions, err := h.sessionService.List(c.Request.Context(), actor, q)
	if err != nil {
		abortWithServiceError(c, err, "Failed to list sessions.")
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

// GetCurrentSession returns the caller's open session, or 404 when there is none.
func (h *SessionHandler) GetCurrentSession(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	session, err := h.sessionService.GetCurrent(c.Request.Context(), actor)
	if err != nil {
		abortWithServiceError(c, err, "Failed to load current session.")
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	session, err := h.sessionService.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err, "Failed to load session.")
		return
	}
	c.JSON(http.StatusOK, session)
}

// UpdateSession godoc
// @Summary Apply a partial update to a session
// @Description Status changes must follow the lifecycle: active->paused|completed|cancelled, paused->active|completed|cancelled.
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param patch body domain.SessionPatch true "Fields to change"
// @Success 200 {object} domain.Session
// @Failure 422 {object} gin.H "Transition not allowed from the current status"
// @Router /sessions/{id} [patch]
func (h *SessionHandler) UpdateSession(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	var patch domain.SessionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	session, err := h.sessionService.Update(c.Request.Context(), actor, c.Param("id"), patch)
	if err != nil {
		abortWithServiceError(c, err, "Failed to update session.")
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) GetAnalytics(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	analytics, err := h.sessionService.Analytics(c.Request.Context(), actor, c.Query("ownerId"))
	if err != nil {
		abortWithServiceError(c, err, "Failed to compute analytics.")
		return
	}
	c.JSON(http.StatusOK, analytics)
}
