package controller

import (
	"github.com/tnqbao/gau-vm-session-service/config"
	"github.com/tnqbao/gau-vm-session-service/infra"
	"github.com/tnqbao/gau-vm-session-service/service"
)

type Controller struct {
	Config       *config.Config
	Infra        *infra.Infra
	Orchestrator *service.Orchestrator
}

func NewController(config *config.Config, infra *infra.Infra, orchestrator *service.Orchestrator) *Controller {
	if orchestrator == nil {
		panic("Failed to initialize Orchestrator")
	}
	return &Controller{
		Config:       config,
		Infra:        infra,
		Orchestrator: orchestrator,
	}
}
