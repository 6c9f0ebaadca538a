package usecase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"storefront-service/app/domain"
	"storefront-service/config"
	"storefront-service/pkg/clock"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

type cartMergeUsecase struct {
	cartRepo    domain.CartRepository
	productRepo domain.ProductRepository
	clock       clock.Clock
	cfg         *config.Config
}

func NewCartMergeUsecase(
	cartRepo domain.CartRepository,
	productRepo domain.ProductRepository,
	clk clock.Clock,
	cfg *config.Config) domain.CartMergeUsecase {
	return &cartMergeUsecase{cartRepo, productRepo, clk, cfg}
}

// MergeAnonymousCart folds the session's cart into the user's cart. Lines
// that cannot be carried over are reported as conflicts and dropped with
// the anonymous cart.
func (u *cartMergeUsecase) MergeAnonymousCart(ctx context.Context, userID int64, sessionID string) (domain.MergeResult, error) {
	if sessionID == "" {
		return domain.MergeResult{}, fmt.Errorf("%w: session id is required", domain.ErrValidation)
	}

	var result domain.MergeResult
	err := u.cartRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		result = domain.MergeResult{ConflictReasons: []string{}}
		now := u.clock.Now()

		anonymous, err := u.cartRepo.GetAnonymousBySessionID(ctx, sessionID, tx)
		if errors.Is(err, domain.ErrCartNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if anonymous.IsExpired(now) {
			return nil
		}

		items, err := u.cartRepo.GetItems(ctx, anonymous.ID, tx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		userCart, err := u.userCart(ctx, userID, tx)
		if err != nil {
			return err
		}
		result.UserCartID = uuid.NullUUID{UUID: userCart.ID, Valid: true}

		for _, item := range items {
			reason, err := u.mergeItem(ctx, userCart.ID, item, tx)
			if err != nil {
				return err
			}
			if reason != "" {
				result.ConflictReasons = append(result.ConflictReasons, reason)
				continue
			}
			result.MergedItems++
		}

		if err := u.cartRepo.Touch(ctx, userCart.ID, now.Add(u.cfg.Cart.UserTTL()), now, tx); err != nil {
			return err
		}

		return u.cartRepo.Delete(ctx, anonymous.ID, tx)
	})
	if err != nil {
		slog.ErrorContext(ctx, "[cartMergeUsecase] MergeAnonymousCart", "withTransaction", err, "user_id", userID)
		return domain.MergeResult{}, fmt.Errorf("%w: could not merge cart", domain.ErrInternal)
	}

	result.Conflicts = len(result.ConflictReasons)
	if result.Conflicts > 0 {
		slog.WarnContext(ctx, "[cartMergeUsecase] MergeAnonymousCart", "conflicts", result.ConflictReasons, "user_id", userID)
	}
	slog.InfoContext(ctx, "[cartMergeUsecase] MergeAnonymousCart", "user_id", userID, "merged", result.MergedItems, "conflicts", result.Conflicts)
	return result, nil
}

// userCart gets or creates the user's cart. An expired cart is emptied and
// reused so the one-cart-per-user constraint holds.
func (u *cartMergeUsecase) userCart(ctx context.Context, userID int64, tx *sql.Tx) (domain.Cart, error) {
	now := u.clock.Now()
	expiresAt := now.Add(u.cfg.Cart.UserTTL())

	cart, err := u.cartRepo.GetByUserID(ctx, userID, tx)
	if err == nil {
		if cart.IsExpired(now) {
			if err := u.cartRepo.DeleteItems(ctx, cart.ID, tx); err != nil {
				return domain.Cart{}, err
			}
		}
		return cart, nil
	}
	if !errors.Is(err, domain.ErrCartNotFound) {
		return domain.Cart{}, err
	}

	cart = domain.Cart{
		UserID:    &userID,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.cartRepo.Create(ctx, &cart, tx); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// mergeItem carries one anonymous line over. A non-empty reason means the
// line was skipped.
func (u *cartMergeUsecase) mergeItem(ctx context.Context, userCartID uuid.UUID, item domain.CartItem, tx *sql.Tx) (string, error) {
	product, err := u.productRepo.GetByID(ctx, item.ProductID, tx)
	if errors.Is(err, domain.ErrProductNotFound) {
		return fmt.Sprintf("product %s: product not found", item.ProductID), nil
	}
	if err != nil {
		return "", err
	}

	if product.StockQuantity < item.Quantity {
		return fmt.Sprintf("%s: insufficient stock (requested %d, in stock %d)", product.Name, item.Quantity, product.StockQuantity), nil
	}

	now := u.clock.Now()
	existing, err := u.cartRepo.GetItem(ctx, userCartID, item.ProductID, tx)
	switch {
	case err == nil:
		combined := existing.Quantity + item.Quantity
		if product.StockQuantity < combined {
			return fmt.Sprintf("%s: insufficient stock (requested %d, in stock %d)", product.Name, combined, product.StockQuantity), nil
		}

		existing.Quantity = combined
		existing.Price = decimal.Min(existing.Price, item.Price)
		existing.OriginalPrice = maxNullDecimal(existing.OriginalPrice, item.OriginalPrice)
		existing.UpdatedAt = now
		if err := u.cartRepo.UpdateItem(ctx, existing, tx); err != nil {
			return "", err
		}
		return "", u.cartRepo.DeleteItem(ctx, item.ID, tx)
	case errors.Is(err, domain.ErrCartItemNotFound):
		line := domain.CartItem{
			CartID:        userCartID,
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			Price:         item.Price,
			OriginalPrice: item.OriginalPrice,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return "", u.cartRepo.CreateItem(ctx, &line, tx)
	default:
		return "", err
	}
}

func maxNullDecimal(a, b decimal.NullDecimal) decimal.NullDecimal {
	switch {
	case !a.Valid:
		return b
	case !b.Valid:
		return a
	default:
		return decimal.NewNullDecimal(decimal.Max(a.Decimal, b.Decimal))
	}
}
