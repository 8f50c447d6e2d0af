package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-vm-session-service/http/controller/dto"
	"github.com/tnqbao/gau-vm-session-service/service"
	"github.com/tnqbao/gau-vm-session-service/utils"
)

// TerminateSession force-terminates any session. With async set the request
// is queued for the worker and answered with 202.
func (ctrl *Controller) TerminateSession(c *gin.Context) {
	ctx := c.Request.Context()

	adminID, sessionID, ok := ctrl.requestIDs(c)
	if !ok {
		return
	}

	var req dto.TerminateSessionRequestDTO
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.JSON400(c, "Invalid request payload")
			return
		}
	}
	reason := req.Reason
	if reason == "" {
		reason = service.ReasonAdminTerminate
	}

	ctrl.Infra.Logger.WarningWithContextf(ctx, "[Admin] %s terminates session %s: %s", adminID, sessionID, reason)

	if req.Async {
		if ctrl.Infra.Produce == nil || ctrl.Infra.Produce.SessionService == nil {
			utils.JSON500(c, "Termination queue unavailable")
			return
		}
		if err := ctrl.Infra.Produce.SessionService.PublishForceTerminate(ctx, sessionID.String(), reason, adminID.String()); err != nil {
			ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Admin] Failed to queue termination of %s: %v", sessionID, err)
			utils.JSON500(c, "Failed to queue termination")
			return
		}
		utils.JSON202(c, dto.TerminateQueuedResponseDTO{SessionID: sessionID.String(), Queued: true})
		return
	}

	view, err := ctrl.Orchestrator.ForceTerminate(ctx, sessionID, reason)
	if err != nil {
		ctrl.respondError(c, "Admin", err)
		return
	}

	utils.JSON200(c, view)
}
