package asset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrUnknownAsset is returned when the registry does not know an asset.
var ErrUnknownAsset = errors.New("unknown asset")

// Registry is the external source of asset records.
type Registry interface {
	// ListAssets returns every asset the wallet knows about.
	ListAssets(ctx context.Context) ([]Asset, error)
}

// Cache is a session scoped, read-through cache in front of a Registry.
// Concurrent lookups share a single registry call.
type Cache struct {
	registry Registry

	group singleflight.Group

	mu     sync.RWMutex
	assets map[string]Asset
	loaded bool
}

// NewCache creates a cache over the given registry. The BTC pseudo-asset is
// always present.
func NewCache(registry Registry) *Cache {
	return &Cache{
		registry: registry,
		assets: map[string]Asset{
			BTCAssetID: BTC,
		},
	}
}

// Get returns the asset with the given id, loading the registry on first
// use.
func (c *Cache) Get(ctx context.Context, id string) (Asset, error) {
	if id == BTCAssetID {
		return BTC, nil
	}

	if a, ok := c.lookup(id); ok {
		return a, nil
	}

	if err := c.load(ctx); err != nil {
		return Asset{}, err
	}

	if a, ok := c.lookup(id); ok {
		return a, nil
	}

	return Asset{}, fmt.Errorf("%w: %v", ErrUnknownAsset, id)
}

// ByTicker finds an asset by its ticker, case-insensitively.
func (c *Cache) ByTicker(ctx context.Context, ticker string) (Asset, error) {
	if strings.EqualFold(ticker, BTC.Ticker) {
		return BTC, nil
	}

	if err := c.load(ctx); err != nil {
		return Asset{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, a := range c.assets {
		if strings.EqualFold(a.Ticker, ticker) {
			return a, nil
		}
	}

	return Asset{}, fmt.Errorf("%w: ticker %v", ErrUnknownAsset, ticker)
}

// All returns every cached asset.
func (c *Cache) All(ctx context.Context) ([]Asset, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	all := make([]Asset, 0, len(c.assets))
	for _, a := range c.assets {
		all = append(all, a)
	}

	return all, nil
}

// Reset drops every fetched asset so the next lookup hits the registry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.assets = map[string]Asset{BTCAssetID: BTC}
	c.loaded = false
}

func (c *Cache) lookup(id string) (Asset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.assets[id]
	return a, ok
}

// load fetches the registry once per session. Concurrent callers share the
// in-flight call.
func (c *Cache) load(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	_, err, _ := c.group.Do("list", func() (interface{}, error) {
		assets, err := c.registry.ListAssets(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to list assets: %w", err)
		}

		fresh := make(map[string]Asset, len(assets)+1)
		fresh[BTCAssetID] = BTC
		for _, a := range assets {
			if err := a.Validate(); err != nil {
				log.Warnf("Skipping invalid asset record: %v",
					err)
				continue
			}
			fresh[a.ID] = a
		}

		c.mu.Lock()
		c.assets = fresh
		c.loaded = true
		c.mu.Unlock()

		log.Debugf("Loaded %d assets from registry", len(fresh)-1)

		return nil, nil
	})

	return err
}
