package cloud

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"golang.org/x/sync/singleflight"
)

// ClientPool caches authenticated drivers per credential set.
type ClientPool struct {
	cache     *ristretto.Cache[string, Driver]
	factories map[entity.CloudProvider]DriverFactory
	group     singleflight.Group
}

// NewClientPool holds at most maxClients drivers, evicting the least valuable.
func NewClientPool(maxClients int64, factories map[entity.CloudProvider]DriverFactory) (*ClientPool, error) {
	if maxClients <= 0 {
		maxClients = 256
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, Driver]{
		NumCounters:        maxClients * 10,
		MaxCost:            maxClients,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("client pool cache: %w", err)
	}

	return &ClientPool{
		cache:     cache,
		factories: factories,
	}, nil
}

// DefaultFactories wires the Azure and AWS drivers.
func DefaultFactories() map[entity.CloudProvider]DriverFactory {
	return map[entity.CloudProvider]DriverFactory{
		entity.CloudProviderAzure: NewAzureDriver,
		entity.CloudProviderAWS:   NewEC2Driver,
	}
}

// Get returns the cached driver for creds, building it on a miss.
// Concurrent misses for the same key share one construction.
func (p *ClientPool) Get(ctx context.Context, creds Credentials) (Driver, error) {
	key := creds.Key()
	if driver, ok := p.cache.Get(key); ok {
		return driver, nil
	}

	factory, ok := p.factories[creds.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, creds.Provider)
	}

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		if driver, ok := p.cache.Get(key); ok {
			return driver, nil
		}
		driver, err := factory(ctx, creds)
		if err != nil {
			return nil, err
		}
		p.cache.Set(key, driver, 1)
		p.cache.Wait()
		return driver, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Driver), nil
}

// Invalidate drops the cached driver for creds.
func (p *ClientPool) Invalidate(creds Credentials) {
	p.cache.Del(creds.Key())
}

func (p *ClientPool) Close() {
	p.cache.Close()
}
