package httpgin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/repository"
	"github.com/kirinyoku/calendar-engine/internal/service/admin"
	"github.com/kirinyoku/calendar-engine/internal/service/calendar"
	"github.com/kirinyoku/calendar-engine/internal/service/query"
	"github.com/kirinyoku/calendar-engine/internal/service/reconciliation"
	"github.com/kirinyoku/calendar-engine/internal/service/restriction"
)

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var (
		verr *domain.ValidationError
		viol *restriction.Violation
		lto  *calendar.LockTimeoutError
		conf *calendar.ConflictError
	)

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: verr.Error(), Code: "VALIDATION_ERROR", Field: verr.Field})
	case errors.As(err, &viol):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: viol.Error(), Code: string(viol.Code)})
	case errors.As(err, &lto):
		secs := int(lto.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: lto.Error(), Code: "LOCK_TIMEOUT"})
	case errors.Is(err, repository.ErrLockTimeout):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "property is busy", Code: "LOCK_TIMEOUT"})
	case errors.As(err, &conf):
		c.JSON(http.StatusConflict, ErrorResponse{Error: conf.Error(), Code: "STATE_CONFLICT"})

	case errors.Is(err, calendar.ErrPropertyNotFound),
		errors.Is(err, query.ErrPropertyNotFound),
		errors.Is(err, admin.ErrPropertyNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "property not found"})
	case errors.Is(err, admin.ErrConnectionConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: admin.ErrConnectionConflict.Error()})
	case errors.Is(err, query.ErrRangeTooLong):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: query.ErrRangeTooLong.Error()})

	case errors.Is(err, reconciliation.ErrConnectionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel connection not found"})
	case errors.Is(err, reconciliation.ErrConnectionInactive):
		c.JSON(http.StatusConflict, ErrorResponse{Error: reconciliation.ErrConnectionInactive.Error()})
	case errors.Is(err, reconciliation.ErrNoChannelAdapter):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: reconciliation.ErrNoChannelAdapter.Error()})

	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
