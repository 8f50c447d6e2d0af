package cloud

import (
	"context"
	"strings"

	"github.com/tnqbao/gau-vm-session-service/entity"
)

// Driver performs power operations against one provider account.
type Driver interface {
	Start(ctx context.Context, vm *entity.VM) error
	Stop(ctx context.Context, vm *entity.VM) error
	PowerState(ctx context.Context, vm *entity.VM) (entity.PowerState, error)
}

// DriverFactory builds an authenticated driver for a credential set.
type DriverFactory func(ctx context.Context, creds Credentials) (Driver, error)

// Credentials identify the provider account a VM belongs to.
// For AWS, ClientID and ClientSecret hold the access key pair.
type Credentials struct {
	Provider       entity.CloudProvider
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
	Region         string
}

func CredentialsFor(vm *entity.VM) Credentials {
	return Credentials{
		Provider:       vm.Provider,
		TenantID:       vm.TenantID,
		ClientID:       vm.ClientID,
		ClientSecret:   vm.ClientSecret,
		SubscriptionID: vm.SubscriptionID,
		Region:         vm.Region,
	}
}

// Key is the pool key. The secret is left out so a rotated secret reuses
// the slot after the stale client is invalidated.
func (c Credentials) Key() string {
	return strings.Join([]string{
		string(c.Provider),
		c.TenantID,
		c.ClientID,
		c.SubscriptionID,
		c.Region,
	}, "|")
}
