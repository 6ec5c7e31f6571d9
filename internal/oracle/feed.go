package oracle

import (
	"errors"
	"math/big"
	"sync"
)

// ErrUnavailable is returned when a feed cannot produce a price, such as
// a live feed that has not seen its first update.
var ErrUnavailable = errors.New("oracle unavailable")

// PriceFeed reports the latest spot price for one asset at feed precision
// (1e8). Prices are assumed fresh and positive; staleness is out of scope.
type PriceFeed interface {
	LatestPrice() (*big.Int, error)
}

// StaticFeed is a settable in-memory feed, used in tests and local runs.
type StaticFeed struct {
	mu    sync.RWMutex
	price *big.Int
}

func NewStaticFeed(price *big.Int) *StaticFeed {
	return &StaticFeed{price: new(big.Int).Set(price)}
}

func (f *StaticFeed) LatestPrice() (*big.Int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.price == nil {
		return nil, ErrUnavailable
	}
	return new(big.Int).Set(f.price), nil
}

// SetPrice replaces the reported price. Simulates oracle price movement.
func (f *StaticFeed) SetPrice(price *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = new(big.Int).Set(price)
}
