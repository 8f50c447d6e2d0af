package cloud

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/tnqbao/gau-vm-session-service/entity"
)

const azurePowerStatePrefix = "PowerState/"

// AzurePowerState maps the PowerState/* code of an instance view.
func AzurePowerState(codes []string) entity.PowerState {
	for _, code := range codes {
		if !strings.HasPrefix(code, azurePowerStatePrefix) {
			continue
		}
		switch strings.TrimPrefix(code, azurePowerStatePrefix) {
		case "running":
			return entity.PowerStateRunning
		case "stopped":
			return entity.PowerStateStopped
		case "deallocated":
			return entity.PowerStateDeallocated
		case "starting":
			return entity.PowerStateStarting
		case "stopping", "deallocating":
			return entity.PowerStateStopping
		default:
			return entity.PowerStateError
		}
	}
	return entity.PowerStateError
}

// EC2PowerState maps an instance state name. A stopped instance holds no
// compute, which is the deallocated state of the normalized model.
func EC2PowerState(name types.InstanceStateName) entity.PowerState {
	switch name {
	case types.InstanceStateNamePending:
		return entity.PowerStateStarting
	case types.InstanceStateNameRunning:
		return entity.PowerStateRunning
	case types.InstanceStateNameStopping:
		return entity.PowerStateStopping
	case types.InstanceStateNameStopped:
		return entity.PowerStateDeallocated
	default:
		return entity.PowerStateError
	}
}
