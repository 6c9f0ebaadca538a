package domain

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// Cart belongs either to a user or to an anonymous session, never both.
type Cart struct {
	ID        uuid.UUID  `json:"id"`
	UserID    *int64     `json:"user_id,omitempty"`
	SessionID *string    `json:"session_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c Cart) IsAnonymous() bool {
	return c.UserID == nil
}

func (c Cart) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

type CartItem struct {
	ID            uuid.UUID           `json:"id"`
	CartID        uuid.UUID           `json:"cart_id"`
	ProductID     uuid.UUID           `json:"product_id"`
	Quantity      int64               `json:"quantity"`
	Price         decimal.Decimal     `json:"price"`
	OriginalPrice decimal.NullDecimal `json:"original_price"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(i.Quantity))
}

// CartOwner identifies whose cart an operation targets. UserID wins when set.
type CartOwner struct {
	UserID    *int64
	SessionID string
}

type CartItemAddRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int64     `json:"quantity" validate:"gt=0"`
}

type CartItemUpdateRequest struct {
	Quantity int64 `json:"quantity" validate:"gte=0"`
}

type MergeCartRequest struct {
	SessionID string `json:"session_id"`
}

type MergeResult struct {
	MergedItems     int           `json:"merged_items"`
	Conflicts       int           `json:"conflicts"`
	ConflictReasons []string      `json:"conflict_reasons"`
	UserCartID      uuid.NullUUID `json:"user_cart_id"`
}

type CartRepository interface {
	GetByUserID(ctx context.Context, userID int64, tx *sql.Tx) (Cart, error)
	GetAnonymousBySessionID(ctx context.Context, sessionID string, tx *sql.Tx) (Cart, error)
	Create(ctx context.Context, cart *Cart, tx *sql.Tx) error
	Touch(ctx context.Context, cartID uuid.UUID, expiresAt, now time.Time, tx *sql.Tx) error
	Delete(ctx context.Context, cartID uuid.UUID, tx *sql.Tx) error
	DeleteExpiredAnonymous(ctx context.Context, now time.Time, tx *sql.Tx) ([]string, error)

	GetItems(ctx context.Context, cartID uuid.UUID, tx *sql.Tx) ([]CartItem, error)
	GetItem(ctx context.Context, cartID, productID uuid.UUID, tx *sql.Tx) (CartItem, error)
	CreateItem(ctx context.Context, item *CartItem, tx *sql.Tx) error
	UpdateItem(ctx context.Context, item CartItem, tx *sql.Tx) error
	DeleteItem(ctx context.Context, itemID uuid.UUID, tx *sql.Tx) error
	DeleteItems(ctx context.Context, cartID uuid.UUID, tx *sql.Tx) error

	WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error
}

type CartUsecase interface {
	GetCart(ctx context.Context, owner CartOwner) (Cart, error)
	AddItem(ctx context.Context, owner CartOwner, req CartItemAddRequest) (Cart, error)
	UpdateItemQuantity(ctx context.Context, owner CartOwner, productID uuid.UUID, req CartItemUpdateRequest) (Cart, error)
	RemoveItem(ctx context.Context, owner CartOwner, productID uuid.UUID) (Cart, error)
	ClearCart(ctx context.Context, owner CartOwner) error
	CleanExpiredAnonymousCarts(ctx context.Context) (int64, error)
}

type CartMergeUsecase interface {
	MergeAnonymousCart(ctx context.Context, userID int64, sessionID string) (MergeResult, error)
}
