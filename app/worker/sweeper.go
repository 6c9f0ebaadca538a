package worker

import (
	"context"
	"log/slog"
	"time"

	"storefront-service/app/domain"
)

const sweepLockKey = "maintenance:sweep"

// Sweeper returns expired holds to the pool and drops abandoned anonymous
// carts. With a Locker only one replica sweeps per tick.
type Sweeper struct {
	reservations domain.ReservationUsecase
	carts        domain.CartUsecase
	locker       domain.Locker
	interval     time.Duration
	lockTTL      time.Duration
}

func NewSweeper(reservations domain.ReservationUsecase, carts domain.CartUsecase, locker domain.Locker, interval, lockTTL time.Duration) *Sweeper {
	return &Sweeper{
		reservations: reservations,
		carts:        carts,
		locker:       locker,
		interval:     interval,
		lockTTL:      lockTTL,
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (domain.SweepReport, error) {
	var report domain.SweepReport

	if s.locker != nil {
		release, acquired, err := s.locker.TryLock(ctx, sweepLockKey, s.lockTTL)
		if err != nil {
			slog.ErrorContext(ctx, "[Sweeper] SweepOnce", "tryLock", err)
			return report, err
		}
		if !acquired {
			slog.InfoContext(ctx, "[Sweeper] SweepOnce", "skipped", "another replica holds the sweep lock")
			report.Skipped = true
			return report, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				slog.WarnContext(ctx, "[Sweeper] SweepOnce", "release", err)
			}
		}()
	}

	expired, err := s.reservations.CleanExpiredReservations(ctx)
	if err != nil {
		return report, err
	}
	report.ExpiredReservations = expired

	deleted, err := s.carts.CleanExpiredAnonymousCarts(ctx)
	if err != nil {
		return report, err
	}
	report.DeletedCarts = deleted

	slog.InfoContext(ctx, "[Sweeper] SweepOnce", "expired_reservations", report.ExpiredReservations, "deleted_carts", report.DeletedCarts)
	return report, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	slog.InfoContext(ctx, "[Sweeper] Run", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil {
			slog.ErrorContext(ctx, "[Sweeper] Run", "sweepOnce", err)
		}

		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "[Sweeper] Run", "stopped", ctx.Err())
			return
		case <-ticker.C:
		}
	}
}
