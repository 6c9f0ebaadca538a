package domain

import "context"

type SweepReport struct {
	ExpiredReservations int64 `json:"expired_reservations"`
	DeletedCarts        int64 `json:"deleted_carts"`
	Skipped             bool  `json:"skipped"`
}

type MaintenanceUsecase interface {
	SweepOnce(ctx context.Context) (SweepReport, error)
}
