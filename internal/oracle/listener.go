package oracle

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// LiveFeed holds the most recent price pushed by an upstream publisher.
// LatestPrice fails with ErrUnavailable until the first update arrives.
type LiveFeed struct {
	mu    sync.RWMutex
	price *big.Int
}

func NewLiveFeed() *LiveFeed {
	return &LiveFeed{}
}

func (f *LiveFeed) LatestPrice() (*big.Int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.price == nil {
		return nil, ErrUnavailable
	}
	return new(big.Int).Set(f.price), nil
}

func (f *LiveFeed) update(price *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = price
}

// priceUpdate is the wire format published on price subjects.
// Price is a decimal string at feed precision (1e8).
type priceUpdate struct {
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

// FeedListener subscribes LiveFeeds to their NATS price subjects.
// Subjects follow the pattern: synth.prices.{asset}
type FeedListener struct {
	conn   *nats.Conn
	logger zerolog.Logger
	subs   []*nats.Subscription
}

func NewFeedListener(conn *nats.Conn, logger zerolog.Logger) *FeedListener {
	return &FeedListener{conn: conn, logger: logger}
}

// Listen wires a feed to its subject. Malformed or non-positive prices are
// logged and dropped; the feed keeps its previous value.
func (l *FeedListener) Listen(subject string, feed *LiveFeed) error {
	sub, err := l.conn.Subscribe(subject, func(msg *nats.Msg) {
		var upd priceUpdate
		if err := json.Unmarshal(msg.Data, &upd); err != nil {
			l.logger.Warn().Err(err).Str("subject", subject).Msg("malformed price update")
			return
		}

		price, ok := new(big.Int).SetString(upd.Price, 10)
		if !ok || price.Sign() <= 0 {
			l.logger.Warn().Str("subject", subject).Str("price", upd.Price).Msg("unusable price, dropped")
			return
		}

		feed.update(price)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	l.subs = append(l.subs, sub)
	return nil
}

// Close drains all subscriptions.
func (l *FeedListener) Close() {
	for _, sub := range l.subs {
		if err := sub.Unsubscribe(); err != nil {
			l.logger.Warn().Err(err).Msg("unsubscribe price feed")
		}
	}
	l.subs = nil
}
