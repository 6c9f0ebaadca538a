package domain

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// Product is the stock ledger entry for a sellable item. StockQuantity is the
// physical on-hand count and never goes negative.
type Product struct {
	ID            uuid.UUID           `json:"id"`
	Name          string              `json:"name"`
	SKU           string              `json:"sku"`
	Price         decimal.Decimal     `json:"price"`
	SalePrice     decimal.NullDecimal `json:"sale_price"`
	StockQuantity int64               `json:"stock_quantity"`
	MinStockLevel int64               `json:"min_stock_level"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// EffectivePrice is the unit price a shopper pays right now.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice.Valid && p.SalePrice.Decimal.LessThan(p.Price) {
		return p.SalePrice.Decimal
	}
	return p.Price
}

// OriginalPrice is the list price when a discount applies, null otherwise.
func (p Product) OriginalPrice() decimal.NullDecimal {
	if p.SalePrice.Valid && p.SalePrice.Decimal.LessThan(p.Price) {
		return decimal.NewNullDecimal(p.Price)
	}
	return decimal.NullDecimal{}
}

func (p Product) IsLowStock() bool {
	return p.StockQuantity <= p.MinStockLevel
}

type StockAvailability struct {
	ProductID      uuid.UUID `json:"product_id"`
	StockQuantity  int64     `json:"stock_quantity"`
	AvailableStock int64     `json:"available_stock"`
	Reserved       int64     `json:"reserved"`
	LowStock       bool      `json:"low_stock"`
}

type RestockRequest struct {
	Quantity int64 `json:"quantity" validate:"gt=0"`
}

type UpdateQuantityRequest struct {
	Quantity int64 `json:"quantity" validate:"gte=0"`
}

type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID, tx *sql.Tx) (Product, error)
	LockForUpdate(ctx context.Context, id uuid.UUID, tx *sql.Tx) (Product, error)
	// DecrementStock fails with ErrInsufficientStock instead of going below zero.
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int64, tx *sql.Tx) (int64, error)
	IncrementStock(ctx context.Context, id uuid.UUID, quantity int64, tx *sql.Tx) (int64, error)
	UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int64, tx *sql.Tx) error

	WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error
}

// StockChecker answers live availability questions outside a transaction.
type StockChecker interface {
	GetAvailableStock(ctx context.Context, productID uuid.UUID) (int64, error)
	HasAvailableStock(ctx context.Context, productID uuid.UUID, quantity int64) (bool, error)
}

type StockUsecase interface {
	GetAvailability(ctx context.Context, productID uuid.UUID) (StockAvailability, error)
	Restock(ctx context.Context, productID uuid.UUID, req RestockRequest) (StockAvailability, error)
	UpdateQuantity(ctx context.Context, productID uuid.UUID, req UpdateQuantityRequest) (StockAvailability, error)
}
