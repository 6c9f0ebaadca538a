package domain

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
)

type StockMessage struct {
	ProductID uuid.UUID `json:"product_id"`
	Available int64     `json:"available"`
}

type BrokerPublisher interface {
	PublishStockAvailable(ctx context.Context, data StockMessage) error
}

// Locker guards work that must run on a single replica at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}
