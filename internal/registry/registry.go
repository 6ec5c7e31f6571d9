package registry

import (
	"errors"

	"SynthLedger/internal/ledger"
	"SynthLedger/internal/oracle"
)

// ErrConfigMismatch is returned when the asset and feed lists passed to New
// have unequal lengths or a feed is missing.
var ErrConfigMismatch = errors.New("asset and price feed lists do not match")

// Registry is the immutable asset -> price feed mapping, fixed at
// construction. Enumeration order is registration order.
type Registry struct {
	assets []ledger.Asset
	feeds  map[ledger.Asset]oracle.PriceFeed
}

// New builds a registry from parallel asset and feed slices. Fails with
// ErrConfigMismatch before any state is established when the lists have
// different lengths or contain a nil feed.
func New(assets []ledger.Asset, feeds []oracle.PriceFeed) (*Registry, error) {
	if len(assets) != len(feeds) {
		return nil, ErrConfigMismatch
	}

	r := &Registry{
		assets: make([]ledger.Asset, 0, len(assets)),
		feeds:  make(map[ledger.Asset]oracle.PriceFeed, len(assets)),
	}

	for i, asset := range assets {
		if feeds[i] == nil {
			return nil, ErrConfigMismatch
		}
		if _, dup := r.feeds[asset]; dup {
			return nil, ErrConfigMismatch
		}
		r.assets = append(r.assets, asset)
		r.feeds[asset] = feeds[i]
	}

	return r, nil
}

// Allowed reports whether the asset is registered.
func (r *Registry) Allowed(asset ledger.Asset) bool {
	_, ok := r.feeds[asset]
	return ok
}

// Feed returns the price feed for a registered asset.
func (r *Registry) Feed(asset ledger.Asset) (oracle.PriceFeed, bool) {
	feed, ok := r.feeds[asset]
	return feed, ok
}

// Assets returns the registered assets in registration order.
func (r *Registry) Assets() []ledger.Asset {
	out := make([]ledger.Asset, len(r.assets))
	copy(out, r.assets)
	return out
}
