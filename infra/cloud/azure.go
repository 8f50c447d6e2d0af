package cloud

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/tnqbao/gau-vm-session-service/entity"
)

type azureDriver struct {
	client *armcompute.VirtualMachinesClient
}

// NewAzureDriver authenticates with a service principal client secret.
func NewAzureDriver(_ context.Context, creds Credentials) (Driver, error) {
	if creds.TenantID == "" || creds.ClientID == "" || creds.ClientSecret == "" || creds.SubscriptionID == "" {
		return nil, ErrMissingCredentials
	}

	cred, err := azidentity.NewClientSecretCredential(creds.TenantID, creds.ClientID, creds.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := armcompute.NewVirtualMachinesClient(creds.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure compute client: %w", err)
	}

	return &azureDriver{client: client}, nil
}

// Start returns once Azure has accepted the operation; the power state is
// observed through PowerState afterwards.
func (d *azureDriver) Start(ctx context.Context, vm *entity.VM) error {
	if _, err := d.client.BeginStart(ctx, vm.ResourceGroup, vm.ResourceName, nil); err != nil {
		return fmt.Errorf("azure start %s: %w", vm.ResourceName, err)
	}
	return nil
}

// Stop deallocates, which powers the VM off and releases its compute.
func (d *azureDriver) Stop(ctx context.Context, vm *entity.VM) error {
	if _, err := d.client.BeginDeallocate(ctx, vm.ResourceGroup, vm.ResourceName, nil); err != nil {
		return fmt.Errorf("azure deallocate %s: %w", vm.ResourceName, err)
	}
	return nil
}

func (d *azureDriver) PowerState(ctx context.Context, vm *entity.VM) (entity.PowerState, error) {
	resp, err := d.client.InstanceView(ctx, vm.ResourceGroup, vm.ResourceName, nil)
	if err != nil {
		return entity.PowerStateError, fmt.Errorf("azure instance view %s: %w", vm.ResourceName, err)
	}

	codes := make([]string, 0, len(resp.Statuses))
	for _, status := range resp.Statuses {
		if status != nil && status.Code != nil {
			codes = append(codes, *status.Code)
		}
	}
	return AzurePowerState(codes), nil
}
