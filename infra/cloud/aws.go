package cloud

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/tnqbao/gau-vm-session-service/entity"
)

type ec2Driver struct {
	client *ec2.Client
}

// NewEC2Driver builds an EC2 client with the VM's static access key pair.
func NewEC2Driver(ctx context.Context, creds Credentials) (Driver, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.Region == "" {
		return nil, ErrMissingCredentials
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(creds.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(creds.ClientID, creds.ClientSecret, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	return &ec2Driver{client: ec2.NewFromConfig(cfg)}, nil
}

func (d *ec2Driver) Start(ctx context.Context, vm *entity.VM) error {
	_, err := d.client.StartInstances(ctx, &ec2.StartInstancesInput{
		InstanceIds: []string{vm.ResourceName},
	})
	if err != nil {
		return fmt.Errorf("ec2 start %s: %w", vm.ResourceName, err)
	}
	return nil
}

func (d *ec2Driver) Stop(ctx context.Context, vm *entity.VM) error {
	_, err := d.client.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{vm.ResourceName},
	})
	if err != nil {
		return fmt.Errorf("ec2 stop %s: %w", vm.ResourceName, err)
	}
	return nil
}

func (d *ec2Driver) PowerState(ctx context.Context, vm *entity.VM) (entity.PowerState, error) {
	out, err := d.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{vm.ResourceName},
	})
	if err != nil {
		return entity.PowerStateError, fmt.Errorf("ec2 describe %s: %w", vm.ResourceName, err)
	}

	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			if instance.State != nil {
				return EC2PowerState(instance.State.Name), nil
			}
		}
	}
	return entity.PowerStateError, fmt.Errorf("%w: %s", ErrInstanceNotFound, vm.ResourceName)
}
