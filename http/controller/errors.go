package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-vm-session-service/service"
	"github.com/tnqbao/gau-vm-session-service/utils"
)

var kindStatus = map[service.Kind]int{
	service.KindValidation: http.StatusBadRequest,
	service.KindCapacity:   http.StatusConflict,
	service.KindOwnership:  http.StatusForbidden,
	service.KindNotFound:   http.StatusNotFound,
	service.KindConflict:   http.StatusConflict,
	service.KindCloud:      http.StatusBadGateway,
	service.KindInternal:   http.StatusInternalServerError,
}

func statusFor(err error) int {
	if errors.Is(err, service.ErrInsufficientCredits) {
		return http.StatusPaymentRequired
	}
	if status, ok := kindStatus[service.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError writes an orchestrator error. Internal details stay in the log.
func (ctrl *Controller) respondError(c *gin.Context, tag string, err error) {
	ctx := c.Request.Context()
	status := statusFor(err)
	kind := service.KindOf(err)

	if status >= http.StatusInternalServerError {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[%s] Request failed: %v", tag, err)
	} else {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[%s] Request rejected (%s): %v", tag, kind, err)
	}

	message := "Internal server error"
	if kind != service.KindInternal {
		message = err.Error()
		var svcErr *service.Error
		if errors.As(err, &svcErr) {
			message = svcErr.Err.Error()
		}
	}
	utils.JSONError(c, status, string(kind), message)
}
