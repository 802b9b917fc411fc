package api

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/service"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// abortWithServiceError maps a service error to its HTTP status. Unknown
// errors are logged and reported as 500 with a generic message.
func abortWithServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrConflict):
		abortWithError(c, http.StatusConflict, domain.ErrConflict.Error())
	case errors.Is(err, domain.ErrPrecondition):
		abortWithError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrSessionChanged):
		abortWithError(c, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, service.ErrIncidentNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSessionAccessDenied):
		abortWithError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidSession),
		errors.Is(err, service.ErrInvalidQuery),
		errors.Is(err, service.ErrInvalidOutcome),
		errors.Is(err, service.ErrInvalidIncident):
		abortWithError(c, http.StatusBadRequest, err.Error())
	default:
		log.Printf("ERROR: %s %s: %v", c.Request.Method, c.FullPath(), err)
		abortWithError(c, http.StatusInternalServerError, fallback)
	}
}
