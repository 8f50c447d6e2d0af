package service

import (
	"fmt"

	"github.com/tnqbao/gau-vm-session-service/config"
	"github.com/tnqbao/gau-vm-session-service/infra"
	"github.com/tnqbao/gau-vm-session-service/repository"
)

// InitOrchestrator assembles the orchestrator from the process-wide infra
// and repositories. Both binaries use it so they share one stop path.
func InitOrchestrator(cfg *config.Config, inf *infra.Infra, repo *repository.Repository) (*Orchestrator, error) {
	rates, err := cfg.EnvConfig.CreditRates()
	if err != nil {
		return nil, fmt.Errorf("credit rates: %w", err)
	}

	return NewOrchestrator(Deps{
		VMs:        repo.VMRepo,
		Sessions:   repo.SessionRepo,
		Heartbeats: repo.HeartbeatRepo,
		Directory:  repo.DirectoryRepo,
		Gateway:    inf.Cloud,
		Pricer:     NewRateTablePricer(rates),
		Credits:    inf.CreditService,
		Billing:    inf.CreditService,
		Events:     inf.Produce.SessionService,
		Logger:     inf.Logger,
		Metrics:    inf.Metrics,
	}, Options{
		MinimumCreditSeconds: cfg.EnvConfig.Session.MinimumCreditSeconds,
		CandidateLimit:       cfg.EnvConfig.Session.CandidateLimit,
	}), nil
}
