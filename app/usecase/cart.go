package usecase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storefront-service/app/domain"
	"storefront-service/config"
	"storefront-service/pkg/clock"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
)

type cartUsecase struct {
	cartRepo        domain.CartRepository
	productRepo     domain.ProductRepository
	reservationRepo domain.ReservationRepository
	clock           clock.Clock
	validate        *validator.Validate
	cfg             *config.Config
}

func NewCartUsecase(
	cartRepo domain.CartRepository,
	productRepo domain.ProductRepository,
	reservationRepo domain.ReservationRepository,
	clk clock.Clock,
	cfg *config.Config) domain.CartUsecase {
	return &cartUsecase{cartRepo, productRepo, reservationRepo, clk, validator.New(), cfg}
}

func (u *cartUsecase) ttl(owner domain.CartOwner) time.Duration {
	if owner.UserID != nil {
		return u.cfg.Cart.UserTTL()
	}
	return u.cfg.Cart.AnonymousTTL()
}

func (u *cartUsecase) lookup(ctx context.Context, owner domain.CartOwner, tx *sql.Tx) (domain.Cart, error) {
	switch {
	case owner.UserID != nil:
		return u.cartRepo.GetByUserID(ctx, *owner.UserID, tx)
	case owner.SessionID != "":
		return u.cartRepo.GetAnonymousBySessionID(ctx, owner.SessionID, tx)
	default:
		return domain.Cart{}, fmt.Errorf("%w: cart owner is missing", domain.ErrBadRequest)
	}
}

// activeCart returns the owner's live cart. Expired carts count as missing.
func (u *cartUsecase) activeCart(ctx context.Context, owner domain.CartOwner, tx *sql.Tx) (domain.Cart, error) {
	cart, err := u.lookup(ctx, owner, tx)
	if err != nil {
		return domain.Cart{}, err
	}
	if cart.IsExpired(u.clock.Now()) {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cart, nil
}

// openCart returns the owner's cart, creating it or recycling an expired one.
func (u *cartUsecase) openCart(ctx context.Context, owner domain.CartOwner, tx *sql.Tx) (domain.Cart, error) {
	now := u.clock.Now()
	expiresAt := now.Add(u.ttl(owner))

	cart, err := u.lookup(ctx, owner, tx)
	switch {
	case err == nil && cart.IsExpired(now):
		if err := u.cartRepo.DeleteItems(ctx, cart.ID, tx); err != nil {
			return domain.Cart{}, err
		}
		if err := u.cartRepo.Touch(ctx, cart.ID, expiresAt, now, tx); err != nil {
			return domain.Cart{}, err
		}
		cart.ExpiresAt = &expiresAt
		return cart, nil
	case err == nil:
		return cart, nil
	case !errors.Is(err, domain.ErrCartNotFound):
		return domain.Cart{}, err
	}

	cart = domain.Cart{
		UserID:    owner.UserID,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if owner.UserID == nil {
		sessionID := owner.SessionID
		cart.SessionID = &sessionID
	}
	if err := u.cartRepo.Create(ctx, &cart, tx); err != nil {
		slog.ErrorContext(ctx, "[cartUsecase] openCart", "createCart", err)
		return domain.Cart{}, err
	}
	return cart, nil
}

func (u *cartUsecase) touch(ctx context.Context, owner domain.CartOwner, cartID uuid.UUID, tx *sql.Tx) error {
	now := u.clock.Now()
	return u.cartRepo.Touch(ctx, cartID, now.Add(u.ttl(owner)), now, tx)
}

// ensureAvailable checks a resulting line quantity against live availability,
// read on the caller's transaction.
func (u *cartUsecase) ensureAvailable(ctx context.Context, product domain.Product, quantity int64, tx *sql.Tx) error {
	availability, err := availabilityOf(ctx, u.reservationRepo, product, u.clock.Now(), tx)
	if err != nil {
		return err
	}
	if availability.AvailableStock < quantity {
		return &domain.StockShortageError{ProductID: product.ID, Requested: quantity, Available: availability.AvailableStock}
	}
	return nil
}

func (u *cartUsecase) GetCart(ctx context.Context, owner domain.CartOwner) (domain.Cart, error) {
	cart, err := u.activeCart(ctx, owner, nil)
	if errors.Is(err, domain.ErrCartNotFound) {
		empty := domain.Cart{UserID: owner.UserID, Items: []domain.CartItem{}}
		if owner.UserID == nil && owner.SessionID != "" {
			sessionID := owner.SessionID
			empty.SessionID = &sessionID
		}
		return empty, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "[cartUsecase] GetCart", "activeCart", err)
		return domain.Cart{}, err
	}

	cart.Items, err = u.cartRepo.GetItems(ctx, cart.ID, nil)
	if err != nil {
		slog.ErrorContext(ctx, "[cartUsecase] GetCart", "getItems", err)
		return domain.Cart{}, err
	}

	return cart, nil
}

func (u *cartUsecase) AddItem(ctx context.Context, owner domain.CartOwner, req domain.CartItemAddRequest) (domain.Cart, error) {
	if err := u.validate.Struct(req); err != nil {
		return domain.Cart{}, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}

	err := u.cartRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		product, err := u.productRepo.GetByID(ctx, req.ProductID, tx)
		if err != nil {
			return err
		}

		cart, err := u.openCart(ctx, owner, tx)
		if err != nil {
			return err
		}

		now := u.clock.Now()
		item, err := u.cartRepo.GetItem(ctx, cart.ID, product.ID, tx)
		switch {
		case err == nil:
			quantity := item.Quantity + req.Quantity
			if err := u.ensureAvailable(ctx, product, quantity, tx); err != nil {
				return err
			}
			item.Quantity = quantity
			item.Price = product.EffectivePrice()
			item.OriginalPrice = product.OriginalPrice()
			item.UpdatedAt = now
			if err := u.cartRepo.UpdateItem(ctx, item, tx); err != nil {
				return err
			}
		case errors.Is(err, domain.ErrCartItemNotFound):
			if err := u.ensureAvailable(ctx, product, req.Quantity, tx); err != nil {
				return err
			}
			item = domain.CartItem{
				CartID:        cart.ID,
				ProductID:     product.ID,
				Quantity:      req.Quantity,
				Price:         product.EffectivePrice(),
				OriginalPrice: product.OriginalPrice(),
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := u.cartRepo.CreateItem(ctx, &item, tx); err != nil {
				return err
			}
		default:
			return err
		}

		return u.touch(ctx, owner, cart.ID, tx)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrInsufficientStock) && !errors.Is(err, domain.ErrNotFound) {
			slog.ErrorContext(ctx, "[cartUsecase] AddItem", "withTransaction", err)
		}
		return domain.Cart{}, err
	}

	return u.GetCart(ctx, owner)
}

func (u *cartUsecase) UpdateItemQuantity(ctx context.Context, owner domain.CartOwner, productID uuid.UUID, req domain.CartItemUpdateRequest) (domain.Cart, error) {
	if err := u.validate.Struct(req); err != nil {
		return domain.Cart{}, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}

	err := u.cartRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cart, err := u.activeCart(ctx, owner, tx)
		if err != nil {
			return err
		}

		item, err := u.cartRepo.GetItem(ctx, cart.ID, productID, tx)
		if err != nil {
			return err
		}

		if req.Quantity == 0 {
			if err := u.cartRepo.DeleteItem(ctx, item.ID, tx); err != nil {
				return err
			}
			return u.touch(ctx, owner, cart.ID, tx)
		}

		if req.Quantity > item.Quantity {
			product, err := u.productRepo.GetByID(ctx, productID, tx)
			if err != nil {
				return err
			}
			if err := u.ensureAvailable(ctx, product, req.Quantity, tx); err != nil {
				return err
			}
		}

		item.Quantity = req.Quantity
		item.UpdatedAt = u.clock.Now()
		if err := u.cartRepo.UpdateItem(ctx, item, tx); err != nil {
			return err
		}
		return u.touch(ctx, owner, cart.ID, tx)
	})
	if err != nil {
		return domain.Cart{}, err
	}

	return u.GetCart(ctx, owner)
}

func (u *cartUsecase) RemoveItem(ctx context.Context, owner domain.CartOwner, productID uuid.UUID) (domain.Cart, error) {
	err := u.cartRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cart, err := u.activeCart(ctx, owner, tx)
		if err != nil {
			return err
		}

		item, err := u.cartRepo.GetItem(ctx, cart.ID, productID, tx)
		if err != nil {
			return err
		}

		if err := u.cartRepo.DeleteItem(ctx, item.ID, tx); err != nil {
			return err
		}
		return u.touch(ctx, owner, cart.ID, tx)
	})
	if err != nil {
		return domain.Cart{}, err
	}

	return u.GetCart(ctx, owner)
}

func (u *cartUsecase) ClearCart(ctx context.Context, owner domain.CartOwner) error {
	cart, err := u.lookup(ctx, owner, nil)
	if errors.Is(err, domain.ErrCartNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := u.cartRepo.Delete(ctx, cart.ID, nil); err != nil {
		slog.ErrorContext(ctx, "[cartUsecase] ClearCart", "deleteCart", err)
		return err
	}
	return nil
}

func (u *cartUsecase) CleanExpiredAnonymousCarts(ctx context.Context) (int64, error) {
	var deleted int64
	err := u.cartRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		now := u.clock.Now()
		sessionIDs, err := u.cartRepo.DeleteExpiredAnonymous(ctx, now, tx)
		if err != nil {
			return err
		}

		removed, err := u.reservationRepo.DeleteInactiveBySessionIDs(ctx, sessionIDs, now, tx)
		if err != nil {
			return err
		}

		deleted = int64(len(sessionIDs))
		if deleted > 0 {
			slog.InfoContext(ctx, "[cartUsecase] CleanExpiredAnonymousCarts", "carts", deleted, "reservations", removed)
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "[cartUsecase] CleanExpiredAnonymousCarts", "withTransaction", err)
		return 0, err
	}

	return deleted, nil
}
