package service

import (
	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-session-service/entity"
)

// VMDescriptor is the part of a VM a session holder may see.
type VMDescriptor struct {
	ID        uuid.UUID            `json:"id"`
	Name      string               `json:"name"`
	VMType    entity.VMType        `json:"vm_type"`
	Provider  entity.CloudProvider `json:"provider"`
	Region    string               `json:"region,omitempty"`
	Status    entity.VMStatus      `json:"status"`
	IPAddress string               `json:"ip_address,omitempty"`
	Port      int                  `json:"port,omitempty"`
}

type SessionView struct {
	Session *entity.Session `json:"session"`
	VM      *VMDescriptor   `json:"vm,omitempty"`
}

func describeVM(vm *entity.VM) *VMDescriptor {
	if vm == nil {
		return nil
	}
	return &VMDescriptor{
		ID:        vm.ID,
		Name:      vm.Name,
		VMType:    vm.VMType,
		Provider:  vm.Provider,
		Region:    vm.Region,
		Status:    vm.Status,
		IPAddress: vm.IPAddress,
		Port:      vm.Port,
	}
}
