package api

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	sessionService  service.SessionService
	incidentService service.IncidentService
}

func NewAdminHandler(sessionService service.SessionService, incidentService service.IncidentService) *AdminHandler {
	return &AdminHandler{sessionService: sessionService, incidentService: incidentService}
}

type EndSessionRequest struct {
	Outcome domain.Action `json:"outcome" binding:"required,oneof=complete cancel"`
}

// GetSessionStats godoc
// @Summary Platform-wide session counters and trainer leaderboard
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.AdminStats
// @Router /admin/session-stats [get]
func (h *AdminHandler) GetSessionStats(c *gin.Context) {
	stats, err := h.sessionService.AdminStats(c.Request.Context())
	if err != nil {
		abortWithServiceError(c, err, "Failed to compute session stats.")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// EndSession godoc
// @Summary Force an open session to completed or cancelled
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param body body EndSessionRequest true "complete or cancel"
// @Success 200 {object} domain.Session
// @Failure 422 {object} gin.H "Session is not open"
// @Router /admin/sessions/{id}/end [post]
func (h *AdminHandler) EndSession(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	var req EndSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	session, err := h.sessionService.EndSession(c.Request.Context(), actor, c.Param("id"), req.Outcome)
	if err != nil {
		abortWithServiceError(c, err, "Failed to end session.")
		return
	}
	c.JSON(http.StatusOK, session)
}

// GetIncident returns the stored incident and, when archived, a presigned URL to its full report.
func (h *AdminHandler) GetIncident(c *gin.Context) {
	report, err := h.incidentService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithServiceError(c, err, "Failed to load incident.")
		return
	}
	c.JSON(http.StatusOK, report)
}
