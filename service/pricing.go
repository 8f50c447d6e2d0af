package service

import (
	"fmt"
	"math"

	"github.com/tnqbao/gau-vm-session-service/entity"
)

// RateTablePricer charges a fixed number of credits per minute for each VM type,
// rounded up to the next hundredth of a credit.
type RateTablePricer struct {
	perMinute map[entity.VMType]float64
}

func NewRateTablePricer(perMinute map[entity.VMType]float64) *RateTablePricer {
	rates := make(map[entity.VMType]float64, len(perMinute))
	for k, v := range perMinute {
		rates[k] = v
	}
	return &RateTablePricer{perMinute: rates}
}

func (p *RateTablePricer) Credits(vmType entity.VMType, seconds int64) (float64, error) {
	rate, ok := p.perMinute[vmType]
	if !ok {
		return 0, fmt.Errorf("no credit rate for vm type %q", vmType)
	}
	if seconds <= 0 {
		return 0, nil
	}

	hundredths := rate * float64(seconds) / 60 * 100
	// Absorb float noise so exact amounts are not pushed up a cent.
	return math.Ceil(hundredths-1e-9) / 100, nil
}
