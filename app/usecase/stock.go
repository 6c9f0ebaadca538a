package usecase

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"storefront-service/app/domain"
	"storefront-service/pkg/clock"
	"storefront-service/pkg/ctxutil"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
)

type stockUsecase struct {
	productRepo        domain.ProductRepository
	reservationRepo    domain.ReservationRepository
	stockPublishBroker domain.BrokerPublisher
	clock              clock.Clock
	validate           *validator.Validate
}

func NewStockUsecase(
	productRepo domain.ProductRepository,
	reservationRepo domain.ReservationRepository,
	stockPublishBroker domain.BrokerPublisher,
	clk clock.Clock) domain.StockUsecase {
	return &stockUsecase{productRepo, reservationRepo, stockPublishBroker, clk, validator.New()}
}

func (u *stockUsecase) GetAvailability(ctx context.Context, productID uuid.UUID) (domain.StockAvailability, error) {
	product, err := u.productRepo.GetByID(ctx, productID, nil)
	if err != nil {
		slog.ErrorContext(ctx, "[stockUsecase] GetAvailability", "getProduct", err)
		return domain.StockAvailability{}, err
	}

	availability, err := availabilityOf(ctx, u.reservationRepo, product, u.clock.Now(), nil)
	if err != nil {
		slog.ErrorContext(ctx, "[stockUsecase] GetAvailability", "availabilityOf", err)
		return domain.StockAvailability{}, err
	}

	return availability, nil
}

func (u *stockUsecase) Restock(ctx context.Context, productID uuid.UUID, req domain.RestockRequest) (domain.StockAvailability, error) {
	if err := u.validate.Struct(req); err != nil {
		return domain.StockAvailability{}, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}

	var availability domain.StockAvailability
	err := u.productRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		product, err := u.productRepo.LockForUpdate(ctx, productID, tx)
		if err != nil {
			slog.ErrorContext(ctx, "[stockUsecase] Restock", "lockProduct", err)
			return err
		}

		product.StockQuantity, err = u.productRepo.IncrementStock(ctx, productID, req.Quantity, tx)
		if err != nil {
			slog.ErrorContext(ctx, "[stockUsecase] Restock", "incrementStock", err)
			return err
		}

		availability, err = availabilityOf(ctx, u.reservationRepo, product, u.clock.Now(), tx)
		if err != nil {
			slog.ErrorContext(ctx, "[stockUsecase] Restock", "availabilityOf", err)
			return err
		}

		publishAvailability(ctx, u.stockPublishBroker, productID, availability.AvailableStock)
		return nil
	})
	if err != nil {
		return domain.StockAvailability{}, err
	}

	slog.InfoContext(ctx, "[stockUsecase] Restock", "product_id", productID, "quantity", req.Quantity, "stock", availability.StockQuantity)
	return availability, nil
}

func (u *stockUsecase) UpdateQuantity(ctx context.Context, productID uuid.UUID, req domain.UpdateQuantityRequest) (domain.StockAvailability, error) {
	if err := u.validate.Struct(req); err != nil {
		return domain.StockAvailability{}, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}

	var availability domain.StockAvailability
	err := u.productRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		product, err := u.productRepo.LockForUpdate(ctx, productID, tx)
		if err != nil {
			slog.ErrorContext(ctx, "[stockUsecase] UpdateQuantity", "lockProduct", err)
			return err
		}

		now := u.clock.Now()
		reserved, err := u.reservationRepo.SumActiveByProductID(ctx, productID, now, tx)
		if err != nil {
			slog.ErrorContext(ctx, "[stockUsecase] UpdateQuantity", "sumActive", err)
			return err
		}

		// Active holds were promised to shoppers; the ledger may not drop below them.
		if req.Quantity < reserved {
			return fmt.Errorf("%w: quantity %d is below %d units held by active reservations", domain.ErrValidation, req.Quantity, reserved)
		}

		if err := u.productRepo.UpdateQuantity(ctx, productID, req.Quantity, tx); err != nil {
			slog.ErrorContext(ctx, "[stockUsecase] UpdateQuantity", "updateQuantity", err)
			return err
		}

		product.StockQuantity = req.Quantity
		availability = newAvailability(product, reserved)
		publishAvailability(ctx, u.stockPublishBroker, productID, availability.AvailableStock)
		return nil
	})
	if err != nil {
		return domain.StockAvailability{}, err
	}

	return availability, nil
}

func availabilityOf(ctx context.Context, reservationRepo domain.ReservationRepository, product domain.Product, now time.Time, tx *sql.Tx) (domain.StockAvailability, error) {
	reserved, err := reservationRepo.SumActiveByProductID(ctx, product.ID, now, tx)
	if err != nil {
		return domain.StockAvailability{}, err
	}
	return newAvailability(product, reserved), nil
}

func newAvailability(product domain.Product, reserved int64) domain.StockAvailability {
	return domain.StockAvailability{
		ProductID:      product.ID,
		StockQuantity:  product.StockQuantity,
		AvailableStock: max(product.StockQuantity-reserved, 0),
		Reserved:       reserved,
		LowStock:       product.IsLowStock(),
	}
}

// publishAvailability announces the new figure once the surrounding
// transaction commits. Publish failures are logged and never undo the write.
func publishAvailability(ctx context.Context, broker domain.BrokerPublisher, productID uuid.UUID, available int64) {
	if broker == nil {
		return
	}

	ctxutil.AfterCommit(ctx, func() {
		err := broker.PublishStockAvailable(ctx, domain.StockMessage{
			ProductID: productID,
			Available: available,
		})
		if err != nil {
			slog.WarnContext(ctx, "[usecase] publishAvailability", "publishStockAvailable", err, "product_id", productID)
		}
	})
}
