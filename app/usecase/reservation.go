package usecase

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"storefront-service/app/domain"
	"storefront-service/config"
	"storefront-service/pkg/clock"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
)

const (
	reasonInsufficientStock = "insufficient stock"
	reasonProductNotFound   = "product not found"
)

type reservationUsecase struct {
	productRepo        domain.ProductRepository
	reservationRepo    domain.ReservationRepository
	stockPublishBroker domain.BrokerPublisher
	clock              clock.Clock
	validate           *validator.Validate
	cfg                *config.Config
}

func NewReservationUsecase(
	productRepo domain.ProductRepository,
	reservationRepo domain.ReservationRepository,
	stockPublishBroker domain.BrokerPublisher,
	clk clock.Clock,
	cfg *config.Config) domain.ReservationUsecase {
	return &reservationUsecase{productRepo, reservationRepo, stockPublishBroker, clk, validator.New(), cfg}
}

func (u *reservationUsecase) GetAvailableStock(ctx context.Context, productID uuid.UUID) (int64, error) {
	product, err := u.productRepo.GetByID(ctx, productID, nil)
	if err != nil {
		return 0, err
	}

	availability, err := availabilityOf(ctx, u.reservationRepo, product, u.clock.Now(), nil)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationUsecase] GetAvailableStock", "availabilityOf", err)
		return 0, err
	}

	return availability.AvailableStock, nil
}

func (u *reservationUsecase) HasAvailableStock(ctx context.Context, productID uuid.UUID, quantity int64) (bool, error) {
	available, err := u.GetAvailableStock(ctx, productID)
	if err != nil {
		return false, err
	}
	return available >= quantity, nil
}

func (u *reservationUsecase) expiration(minutes int) time.Duration {
	if minutes <= 0 {
		minutes = u.cfg.Reservation.ExpirationMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (u *reservationUsecase) CreateReservation(ctx context.Context, req domain.ReservationCreateRequest) (domain.ReservationResult, error) {
	if err := u.validate.Struct(req); err != nil {
		return domain.ReservationResult{}, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}

	var result domain.ReservationResult
	err := u.productRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		result, err = u.reserve(ctx, tx, req)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			slog.WarnContext(ctx, "[reservationUsecase] CreateReservation", "insufficientStock", err)
		} else {
			slog.ErrorContext(ctx, "[reservationUsecase] CreateReservation", "withTransaction", err)
		}
		return domain.ReservationResult{}, err
	}

	slog.InfoContext(ctx, "[reservationUsecase] CreateReservation", "reservation_id", result.ReservationID, "product_id", result.ProductID, "quantity", result.Quantity)
	return result, nil
}

// reserve places one hold. The product row lock serialises the availability
// check with the insert against every other writer for the same product.
func (u *reservationUsecase) reserve(ctx context.Context, tx *sql.Tx, req domain.ReservationCreateRequest) (domain.ReservationResult, error) {
	product, err := u.productRepo.LockForUpdate(ctx, req.ProductID, tx)
	if err != nil {
		return domain.ReservationResult{}, err
	}

	now := u.clock.Now()
	availability, err := availabilityOf(ctx, u.reservationRepo, product, now, tx)
	if err != nil {
		return domain.ReservationResult{}, err
	}

	if availability.AvailableStock < req.Quantity {
		return domain.ReservationResult{}, &domain.StockShortageError{
			ProductID: product.ID,
			Requested: req.Quantity,
			Available: availability.AvailableStock,
		}
	}

	reservation := domain.StockReservation{
		ProductID: product.ID,
		OrderID:   req.OrderID,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Quantity:  req.Quantity,
		Status:    domain.ReservationStatusPending,
		ExpiresAt: now.Add(u.expiration(req.ExpirationMinutes)),
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.reservationRepo.Create(ctx, &reservation, tx); err != nil {
		return domain.ReservationResult{}, err
	}

	available := availability.AvailableStock - req.Quantity
	publishAvailability(ctx, u.stockPublishBroker, product.ID, available)

	return domain.ReservationResult{
		ReservationID:  reservation.ID,
		ProductID:      product.ID,
		Quantity:       reservation.Quantity,
		ExpiresAt:      reservation.ExpiresAt.Format(time.RFC3339),
		AvailableStock: available,
	}, nil
}

func (u *reservationUsecase) GetReservation(ctx context.Context, id uuid.UUID) (domain.StockReservation, error) {
	reservation, err := u.reservationRepo.GetByID(ctx, id, nil)
	if err != nil {
		return domain.StockReservation{}, err
	}
	return reservation, nil
}

func (u *reservationUsecase) ConfirmReservation(ctx context.Context, id uuid.UUID) (domain.ConfirmResult, error) {
	var result domain.ConfirmResult
	err := u.productRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		result, err = u.confirm(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.ConfirmResult{}, err
	}

	slog.InfoContext(ctx, "[reservationUsecase] ConfirmReservation", "reservation_id", id, "stock", result.StockQuantity)
	return result, nil
}

// confirm turns a hold into a ledger decrement. The caller owns tx.
func (u *reservationUsecase) confirm(ctx context.Context, tx *sql.Tx, id uuid.UUID) (domain.ConfirmResult, error) {
	reservation, err := u.reservationRepo.GetByID(ctx, id, tx)
	if err != nil {
		return domain.ConfirmResult{}, err
	}

	product, err := u.productRepo.LockForUpdate(ctx, reservation.ProductID, tx)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationUsecase] confirm", "lockProduct", err, "reservation_id", id)
		return domain.ConfirmResult{}, err
	}

	// Re-read under the product lock so a concurrent confirm or cancel is seen.
	reservation, err = u.reservationRepo.GetByID(ctx, id, tx)
	if err != nil {
		return domain.ConfirmResult{}, err
	}

	now := u.clock.Now()
	if !reservation.IsActive(now) {
		status := reservation.Status
		if status == domain.ReservationStatusPending {
			status = domain.ReservationStatusExpired
		}
		return domain.ConfirmResult{}, fmt.Errorf("%w: reservation %s is %s", domain.ErrReservationNotActive, id, status)
	}

	reserved, err := u.reservationRepo.SumActiveByProductID(ctx, product.ID, now, tx)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationUsecase] confirm", "sumActive", err, "reservation_id", id)
		return domain.ConfirmResult{}, err
	}

	// The hold being confirmed is part of reserved; everything else must stay covered.
	others := reserved - reservation.Quantity
	if product.StockQuantity-others < reservation.Quantity {
		slog.WarnContext(ctx, "[reservationUsecase] confirm", "stockConflict", "stock no longer covers active holds",
			"reservation_id", id, "product_id", product.ID, "stock", product.StockQuantity, "reserved", reserved)
		return domain.ConfirmResult{}, fmt.Errorf("%w: product %s has %d in stock for %d held", domain.ErrStockConflict, product.ID, product.StockQuantity, reserved)
	}

	ok, err := u.reservationRepo.UpdateStatus(ctx, id, domain.ReservationStatusPending, domain.ReservationStatusConfirmed, now, tx)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationUsecase] confirm", "updateStatus", err, "reservation_id", id)
		return domain.ConfirmResult{}, err
	}
	if !ok {
		return domain.ConfirmResult{}, fmt.Errorf("%w: reservation %s changed status", domain.ErrReservationNotActive, id)
	}

	stock, err := u.productRepo.DecrementStock(ctx, product.ID, reservation.Quantity, tx)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			slog.WarnContext(ctx, "[reservationUsecase] confirm", "stockConflict", "ledger decrement rejected",
				"reservation_id", id, "product_id", product.ID, "quantity", reservation.Quantity)
			return domain.ConfirmResult{}, fmt.Errorf("%w: product %s", domain.ErrStockConflict, product.ID)
		}
		slog.ErrorContext(ctx, "[reservationUsecase] confirm", "decrementStock", err, "reservation_id", id)
		return domain.ConfirmResult{}, err
	}

	return domain.ConfirmResult{
		ReservationID: id,
		ProductID:     product.ID,
		StockQuantity: stock,
	}, nil
}

func (u *reservationUsecase) CancelReservation(ctx context.Context, id uuid.UUID) (domain.CancelResult, error) {
	var result domain.CancelResult
	err := u.productRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		reservation, err := u.reservationRepo.GetByID(ctx, id, tx)
		if err != nil {
			return err
		}

		result = domain.CancelResult{ReservationID: id, Status: reservation.Status}
		if reservation.Status.IsTerminal() {
			result.AlreadyTerminal = true
			return nil
		}

		ok, err := u.reservationRepo.UpdateStatus(ctx, id, domain.ReservationStatusPending, domain.ReservationStatusCancelled, u.clock.Now(), tx)
		if err != nil {
			slog.ErrorContext(ctx, "[reservationUsecase] CancelReservation", "updateStatus", err)
			return err
		}
		if !ok {
			// Lost a race with confirm, cancel or the sweep.
			current, err := u.reservationRepo.GetByID(ctx, id, tx)
			if err != nil {
				return err
			}
			result.Status = current.Status
			result.AlreadyTerminal = true
			return nil
		}

		result.Status = domain.ReservationStatusCancelled
		return u.announce(ctx, tx, reservation.ProductID)
	})
	if err != nil {
		return domain.CancelResult{}, err
	}

	slog.InfoContext(ctx, "[reservationUsecase] CancelReservation", "reservation_id", id, "already_terminal", result.AlreadyTerminal)
	return result, nil
}

type orderLine struct {
	ProductID uuid.UUID
	Quantity  int64
	Price     string
}

// orderLines folds repeated products together and orders them by product id
// so concurrent orders take row locks in the same order.
func orderLines(items []domain.OrderItem) []orderLine {
	index := make(map[uuid.UUID]int, len(items))
	lines := make([]orderLine, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			lines[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(lines)
		lines = append(lines, orderLine{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price.String()})
	}

	slices.SortFunc(lines, func(a, b orderLine) int {
		return bytes.Compare(a.ProductID.Bytes(), b.ProductID.Bytes())
	})
	return lines
}

func (u *reservationUsecase) ReserveStockForOrder(ctx context.Context, order domain.Order, expirationMinutes int) (domain.OrderReservationResult, error) {
	result := domain.OrderReservationResult{OrderID: order.ID}
	if len(order.Items) == 0 {
		return result, fmt.Errorf("%w: order %s has no items", domain.ErrValidation, order.ID)
	}

	lines := orderLines(order.Items)
	for _, line := range lines {
		if line.Quantity <= 0 {
			return result, fmt.Errorf("%w: quantity for product %s must be positive", domain.ErrValidation, line.ProductID)
		}
	}

	var (
		reservations []domain.ReservationResult
		failures     []domain.ReservationFailure
	)
	err := u.productRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		reservations, failures = nil, nil

		for _, line := range lines {
			userID := order.UserID
			orderID := order.ID
			res, err := u.reserve(ctx, tx, domain.ReservationCreateRequest{
				ProductID:         line.ProductID,
				Quantity:          line.Quantity,
				OrderID:           &orderID,
				UserID:            &userID,
				ExpirationMinutes: expirationMinutes,
				Metadata:          map[string]any{"unit_price": line.Price},
			})

			var shortage *domain.StockShortageError
			switch {
			case err == nil:
				reservations = append(reservations, res)
			case errors.As(err, &shortage):
				failures = append(failures, domain.ReservationFailure{
					ProductID: line.ProductID,
					Requested: shortage.Requested,
					Available: shortage.Available,
					Reason:    reasonInsufficientStock,
				})
			case errors.Is(err, domain.ErrProductNotFound):
				failures = append(failures, domain.ReservationFailure{
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Reason:    reasonProductNotFound,
				})
			default:
				slog.ErrorContext(ctx, "[reservationUsecase] ReserveStockForOrder", "reserve", err, "order_id", order.ID, "product_id", line.ProductID)
				return err
			}
		}

		if len(failures) > 0 {
			return fmt.Errorf("%w: %s", failureCause(failures), describeFailures(failures))
		}
		return nil
	})
	if err != nil {
		result.Failures = failures
		if len(failures) > 0 {
			slog.WarnContext(ctx, "[reservationUsecase] ReserveStockForOrder", "rejected", err, "order_id", order.ID)
		}
		return result, err
	}

	result.Success = true
	result.Reservations = reservations
	slog.InfoContext(ctx, "[reservationUsecase] ReserveStockForOrder", "order_id", order.ID, "reservations", len(reservations))
	return result, nil
}

// failureCause reports ErrProductNotFound only when no line failed for stock.
func failureCause(failures []domain.ReservationFailure) error {
	for _, f := range failures {
		if f.Reason != reasonProductNotFound {
			return domain.ErrInsufficientStock
		}
	}
	return domain.ErrProductNotFound
}

func describeFailures(failures []domain.ReservationFailure) string {
	var buf bytes.Buffer
	for i, f := range failures {
		if i > 0 {
			buf.WriteString("; ")
		}
		if f.Reason == reasonInsufficientStock {
			fmt.Fprintf(&buf, "product %s: requested %d, available %d", f.ProductID, f.Requested, f.Available)
		} else {
			fmt.Fprintf(&buf, "product %s: %s", f.ProductID, f.Reason)
		}
	}
	return buf.String()
}

func (u *reservationUsecase) ListOrderReservations(ctx context.Context, orderID uuid.UUID) ([]domain.StockReservation, error) {
	reservations, err := u.reservationRepo.GetByOrderIDAndStatus(ctx, orderID, "", nil)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationUsecase] ListOrderReservations", "getByOrderID", err)
		return nil, err
	}
	if reservations == nil {
		reservations = []domain.StockReservation{}
	}
	return reservations, nil
}

func (u *reservationUsecase) ConfirmOrderReservations(ctx context.Context, orderID uuid.UUID) (domain.OrderReservationSummary, error) {
	summary := domain.OrderReservationSummary{OrderID: orderID, Status: domain.ReservationStatusConfirmed}

	err := u.productRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		reservations, err := u.reservationRepo.GetByOrderIDAndStatus(ctx, orderID, "", tx)
		if err != nil {
			return err
		}
		if len(reservations) == 0 {
			return fmt.Errorf("%w: order %s holds no stock", domain.ErrReservationNotActive, orderID)
		}

		slices.SortFunc(reservations, func(a, b domain.StockReservation) int {
			return bytes.Compare(a.ProductID.Bytes(), b.ProductID.Bytes())
		})

		// Every hold must still be live, whether or not the sweep has marked it yet.
		now := u.clock.Now()
		for _, reservation := range reservations {
			switch {
			case reservation.Status == domain.ReservationStatusConfirmed:
			case reservation.IsActive(now):
			default:
				status := reservation.Status
				if status == domain.ReservationStatusPending {
					status = domain.ReservationStatusExpired
				}
				return fmt.Errorf("%w: reservation %s for order %s is %s", domain.ErrReservationNotActive, reservation.ID, orderID, status)
			}
		}

		summary.Processed = 0
		for _, reservation := range reservations {
			if reservation.Status == domain.ReservationStatusConfirmed {
				continue
			}
			if _, err := u.confirm(ctx, tx, reservation.ID); err != nil {
				return err
			}
			summary.Processed++
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "[reservationUsecase] ConfirmOrderReservations", "withTransaction", err, "order_id", orderID)
		return domain.OrderReservationSummary{}, err
	}

	slog.InfoContext(ctx, "[reservationUsecase] ConfirmOrderReservations", "order_id", orderID, "confirmed", summary.Processed)
	return summary, nil
}

func (u *reservationUsecase) CancelOrderReservations(ctx context.Context, orderID uuid.UUID) (domain.OrderReservationSummary, error) {
	summary := domain.OrderReservationSummary{OrderID: orderID, Status: domain.ReservationStatusCancelled}

	err := u.productRepo.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		productIDs, err := u.reservationRepo.CancelPendingByOrderID(ctx, orderID, u.clock.Now(), tx)
		if err != nil {
			return err
		}

		summary.Processed = len(productIDs)
		for _, productID := range distinct(productIDs) {
			if err := u.announce(ctx, tx, productID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "[reservationUsecase] CancelOrderReservations", "withTransaction", err, "order_id", orderID)
		return domain.OrderReservationSummary{}, err
	}

	slog.InfoContext(ctx, "[reservationUsecase] CancelOrderReservations", "order_id", orderID, "cancelled", summary.Processed)
	return summary, nil
}

func (u *reservationUsecase) CleanExpiredReservations(ctx context.Context) (int64, error) {
	productIDs, err := u.reservationRepo.ExpirePending(ctx, u.clock.Now(), nil)
	if err != nil {
		slog.ErrorContext(ctx, "[reservationUsecase] CleanExpiredReservations", "expirePending", err)
		return 0, err
	}

	// Expired holds already stopped counting; this only refreshes subscribers.
	for _, productID := range distinct(productIDs) {
		if err := u.announce(ctx, nil, productID); err != nil {
			slog.WarnContext(ctx, "[reservationUsecase] CleanExpiredReservations", "announce", err, "product_id", productID)
		}
	}

	if len(productIDs) > 0 {
		slog.InfoContext(ctx, "[reservationUsecase] CleanExpiredReservations", "expired", len(productIDs))
	}
	return int64(len(productIDs)), nil
}

// announce recomputes a product's availability and publishes it after commit.
func (u *reservationUsecase) announce(ctx context.Context, tx *sql.Tx, productID uuid.UUID) error {
	product, err := u.productRepo.GetByID(ctx, productID, tx)
	if err != nil {
		return err
	}

	availability, err := availabilityOf(ctx, u.reservationRepo, product, u.clock.Now(), tx)
	if err != nil {
		return err
	}

	publishAvailability(ctx, u.stockPublishBroker, productID, availability.AvailableStock)
	return nil
}

func distinct(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
