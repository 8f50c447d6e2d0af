package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"github.com/tnqbao/gau-vm-session-service/http/controller/dto"
	"github.com/tnqbao/gau-vm-session-service/service"
	"github.com/tnqbao/gau-vm-session-service/utils"
)

func (ctrl *Controller) StartSession(c *gin.Context) {
	ctx := c.Request.Context()

	userID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Session] user_id not found in context: %v", err)
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	var req dto.StartSessionRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Session] Failed to bind StartSession request: %v", err)
		utils.JSON400(c, "Invalid request payload")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Session] User %s requests a %s VM in workspace %s", userID, req.VMType, req.WorkspaceID)

	view, err := ctrl.Orchestrator.Start(ctx, service.StartInput{
		ProjectID:   uuid.MustParse(req.ProjectID),
		WorkspaceID: uuid.MustParse(req.WorkspaceID),
		UserID:      userID,
		VMType:      entity.VMType(req.VMType),
		Client: entity.ClientContext{
			IPAddress: c.ClientIP(),
			Location:  req.Location,
			UserAgent: c.Request.UserAgent(),
		},
	})
	if err != nil {
		ctrl.respondError(c, "Session", err)
		return
	}

	utils.JSON201(c, view)
}

func (ctrl *Controller) StopSession(c *gin.Context) {
	ctx := c.Request.Context()

	userID, sessionID, ok := ctrl.requestIDs(c)
	if !ok {
		return
	}

	view, err := ctrl.Orchestrator.Stop(ctx, sessionID, userID)
	if err != nil {
		ctrl.respondError(c, "Session", err)
		return
	}

	utils.JSON200(c, view)
}

func (ctrl *Controller) Heartbeat(c *gin.Context) {
	ctx := c.Request.Context()

	userID, sessionID, ok := ctrl.requestIDs(c)
	if !ok {
		return
	}

	var req dto.HeartbeatRequestDTO
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.JSON400(c, "Invalid heartbeat payload")
			return
		}
	}

	accepted, err := ctrl.Orchestrator.Heartbeat(ctx, sessionID, userID, service.HeartbeatInput{
		Status:        req.Status,
		CPUPercent:    req.CPUPercent,
		MemoryPercent: req.MemoryPercent,
	})
	if err != nil {
		ctrl.respondError(c, "Heartbeat", err)
		return
	}

	utils.JSON200(c, dto.HeartbeatResponseDTO{Accepted: accepted})
}

// GetSession returns a session to its owner or to an administrator.
func (ctrl *Controller) GetSession(c *gin.Context) {
	ctx := c.Request.Context()

	userID, sessionID, ok := ctrl.requestIDs(c)
	if !ok {
		return
	}

	view, err := ctrl.Orchestrator.GetSession(ctx, sessionID)
	if err != nil {
		ctrl.respondError(c, "Session", err)
		return
	}
	if view.Session.UserID != userID && !utils.IsAdmin(c) {
		utils.JSON403(c, service.ErrNotOwner.Error())
		return
	}

	utils.JSON200(c, view)
}

func (ctrl *Controller) GetActiveSession(c *gin.Context) {
	ctx := c.Request.Context()

	userID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	view, err := ctrl.Orchestrator.GetActiveSession(ctx, userID)
	if err != nil {
		ctrl.respondError(c, "Session", err)
		return
	}

	utils.JSON200(c, dto.ActiveSessionResponseDTO{Session: view})
}

// requestIDs reads the caller and the :id path parameter, answering the
// request itself when either is unusable.
func (ctrl *Controller) requestIDs(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(c.Request.Context(), err, "[Session] user_id not found in context: %v", err)
		utils.JSON401(c, "Unauthorized: user_id not found")
		return uuid.Nil, uuid.Nil, false
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.JSON400(c, "Invalid session id")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, sessionID, true
}
