package api

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

type IncidentHandler struct {
	incidentService service.IncidentService
}

func NewIncidentHandler(incidentService service.IncidentService) *IncidentHandler {
	return &IncidentHandler{incidentService: incidentService}
}

// ReportIncident accepts a contained surface failure from any authenticated client.
func (h *IncidentHandler) ReportIncident(c *gin.Context) {
	actor, ok := getActor(c)
	if !ok {
		return
	}
	var incident domain.Incident
	if err := c.ShouldBindJSON(&incident); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	if err := h.incidentService.Report(c.Request.Context(), actor.UserID, &incident); err != nil {
		abortWithServiceError(c, err, "Failed to record incident.")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"incidentId": incident.ID})
}
