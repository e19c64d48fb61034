package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/pockets/internal/pockets"
)

// RegisterPocketRoutes wires ledger endpoints for the authenticated owner.
func RegisterPocketRoutes(r fiber.Router, h *pockets.Handler) {
	r.Get("/pockets", h.List)
	r.Post("/pockets", h.Create)
	r.Get("/pockets/:name", h.Get)
	r.Delete("/pockets/:name", h.Delete)
	r.Post("/pockets/:name/deposit", h.Deposit)
	r.Post("/pockets/:name/move", h.Move)
	r.Post("/pockets/:name/spend", h.Spend)
	r.Get("/log", h.Log)
	r.Post("/settlements/:seq", h.Confirm)
	r.Post("/admin/replay", h.Replay)
}
