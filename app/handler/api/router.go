package handler

import (
	"storefront-service/app/middleware"
	"storefront-service/config"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Stock       *StockHandler
	Reservation *ReservationHandler
	Cart        *CartHandler
	Order       *OrderHandler
	Maintenance *MaintenanceHandler
}

func SetupRouter(app *fiber.App, h Handlers, cfg *config.Config) {
	auth := middleware.Auth(cfg.Jwt.SecretKey)

	api := app.Group("/storefront-service")
	api.Get("/products/:product_id/availability", h.Stock.GetAvailability)

	cart := api.Group("/cart", middleware.OptionalAuth(cfg.Jwt.SecretKey), middleware.Session(cfg.Cart.AnonymousTTL()))
	cart.Get("", h.Cart.Get)
	cart.Delete("", h.Cart.Clear)
	cart.Post("/items", h.Cart.AddItem)
	cart.Put("/items/:product_id", h.Cart.UpdateItem)
	cart.Delete("/items/:product_id", h.Cart.RemoveItem)
	cart.Post("/merge", auth, h.Cart.Merge)

	api.Post("/checkout", auth, h.Order.Checkout)
	api.Get("/orders/:id", auth, h.Order.Get)

	internal := app.Group("/internal/storefront-service", middleware.InternalOnly(cfg))
	internal.Post("/reservations", h.Reservation.Create)
	internal.Get("/reservations/:id", h.Reservation.Get)
	internal.Post("/reservations/:id/confirm", h.Reservation.Confirm)
	internal.Post("/reservations/:id/cancel", h.Reservation.Cancel)
	internal.Get("/orders/:id/reservations", h.Reservation.ListByOrder)
	internal.Post("/orders/:id/reservations/confirm", h.Reservation.ConfirmOrder)
	internal.Post("/orders/:id/reservations/cancel", h.Reservation.CancelOrder)
	internal.Put("/orders/:id/status", h.Order.UpdateStatus)
	internal.Post("/products/:product_id/restock", h.Stock.Restock)
	internal.Put("/products/:product_id/stock", h.Stock.UpdateQuantity)
	internal.Post("/maintenance/sweep", h.Maintenance.Sweep)
}
